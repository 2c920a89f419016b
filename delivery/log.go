package delivery

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSender writes codes to a zerolog logger instead of sending them.
// Development use only; it defeats the out-of-band property.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("code", msg.Code).
		Msg("otp delivery (log sender)")
	return nil
}
