/*
Package tls builds the HTTPS listener configuration for the server.

Certificates are served through a CertificateReloader, which checks the
certificate and key files for changes on an interval, so a renewed
certificate (Let's Encrypt, cert-manager) is picked up without a restart.
A renewal that fails to load or validate is logged and the previous
certificate stays in use.

	tlsCfg, reloader, err := tls.New(cfg.Server.TLS, logger)
	if err != nil {
	    return err
	}
	go reloader.Run(ctx)
	ln = cryptotls.NewListener(ln, tlsCfg)
*/
package tls
