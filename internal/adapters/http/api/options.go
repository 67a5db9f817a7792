package api

import "github.com/okian/shopstudy/pkg/logger"

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

type options struct {
	adminPassword string
	log           logger.Logger
}

// Option configures a Server.
type Option func(*options)

// WithAdminPassword sets the shared secret for the admin routes.
func WithAdminPassword(password string) Option {
	return func(o *options) {
		o.adminPassword = password
	}
}

// WithLogger sets the logger used for server-side failures.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}
