package user

import (
	"github.com/trezcool/elimu/core"
)

type serviceMock struct {
	service
}

// NewServiceMock returns a Service suitable for tests; email side effects run
// through whatever mock EmailService is provided.
func NewServiceMock(repo Repository, mailSvc core.EmailService, logger core.Logger, conf *core.Config) Service {
	ConfigureTokenGen(conf)
	return &serviceMock{
		service: service{
			repo:    repo,
			mailSvc: mailSvc,
			logger:  logger,
			conf:    conf,
		},
	}
}
