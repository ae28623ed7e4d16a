package pki

import (
	"context"
)

const sharedSecretTask = "shared-secret"

func secretCommand(argv []string, path string) Command {
	c := Command{Program: argv[0]}
	for _, a := range argv[1:] {
		c.Params = append(c.Params, Arg{Value: a})
	}
	c.Params = append(c.Params, Arg{Value: path, Quote: true})
	return c
}

// generateSecretKey starts the shared secret generation on a detached
// goroutine. Its failure is logged and handed to the diagnostic callback,
// never returned.
func (p *PKI) generateSecretKey(ctx context.Context) {
	if len(p.secretCmd) == 0 {
		return
	}
	cmd := secretCommand(p.secretCmd, p.layout.SharedSecret())
	ctx = context.WithoutCancel(ctx)

	p.bg.Add(1)
	go func() {
		defer p.bg.Done()
		res := p.step(ctx, cmd)
		if res.Err != nil {
			p.logger.WarnContext(ctx, "shared secret generation failed",
				"command", cmd.Redacted(), "error", res.Err)
			if p.diag != nil {
				p.diag(sharedSecretTask, res.Err)
			}
			return
		}
		p.logger.InfoContext(ctx, "shared secret generated", "path", p.layout.SharedSecret())
	}()
}

// Wait blocks until detached background tasks have finished.
func (p *PKI) Wait() {
	p.bg.Wait()
}
