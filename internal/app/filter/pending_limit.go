package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/soundhaus/partyline/internal/domain/party"
)

// PendingLimitConfig represents the configuration for PendingLimitFilter.
type PendingLimitConfig struct {
	MaxPending int `yaml:"max_pending" mapstructure:"max_pending" default:"3" validate:"gte=1"`
}

// PendingLimitFilter caps how many unplayed requests a single guest may
// hold in the queue at once.
type PendingLimitFilter struct {
	config *PendingLimitConfig
}

// NewPendingLimitFilter creates a new pending limit filter.
func NewPendingLimitFilter() *PendingLimitFilter {
	return &PendingLimitFilter{}
}

func (f *PendingLimitFilter) Name() string {
	return "pending_limit_filter"
}

func (f *PendingLimitFilter) Description() string {
	return "Limits the number of pending requests per guest"
}

func (f *PendingLimitFilter) ReturnCodes() []string {
	return []string{"pending_limit_exceeded"}
}

func (f *PendingLimitFilter) ValidateConfig(settings map[string]any) error {
	var config PendingLimitConfig

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &config,
		TagName: "mapstructure",
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}

	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}

	if err := defaults.Set(&config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}

	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}

	f.config = &config
	zlog.Info().Msgf("pending limit filter config: %+v", config)
	return nil
}

func (f *PendingLimitFilter) AppliesTo(role party.Role) bool {
	// The host curates the queue and is exempt
	return role != party.RoleHost
}

func (f *PendingLimitFilter) Check(ctx context.Context, c Candidate) Result {
	if f.config == nil {
		return Accept()
	}

	if c.PendingCount >= f.config.MaxPending {
		return Reject("pending_limit_exceeded")
	}

	return Accept()
}

func init() {
	Register("pending_limit_filter", func() Filter {
		return NewPendingLimitFilter()
	})
}
