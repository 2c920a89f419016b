package authd

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/MrEthical07/authd/delivery"
	internalaudit "github.com/MrEthical07/authd/internal/audit"
	"github.com/MrEthical07/authd/internal/otp"
	"github.com/MrEthical07/authd/internal/rate"
	"github.com/MrEthical07/authd/jwt"
	"github.com/MrEthical07/authd/password"
	"github.com/MrEthical07/authd/session"
)

// Builder assembles a Service. Redis and a UserStore are required; the
// audit sink, delivery sender, and logger have safe defaults.
type Builder struct {
	config    *Config
	redis     redis.UniversalClient
	users     UserStore
	sink      AuditSink
	sender    delivery.Sender
	logger    zerolog.Logger
	hasLogger bool
	built     bool
}

func New() *Builder {
	return &Builder{}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = &cfg
	return b
}

func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserStore(users UserStore) *Builder {
	b.users = users
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

func (b *Builder) WithSender(sender delivery.Sender) *Builder {
	b.sender = sender
	return b
}

func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	b.hasLogger = true
	return b
}

// Build validates the configuration and wires all stores and managers.
// A Builder builds at most once.
func (b *Builder) Build() (*Service, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, fmt.Errorf("%w: redis client is required", ErrServiceNotReady)
	}
	if b.users == nil {
		return nil, fmt.Errorf("%w: user store is required", ErrServiceNotReady)
	}

	cfg := defaultConfig()
	if b.config != nil {
		cfg = *b.config
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if !b.hasLogger {
		logger = zerolog.Nop()
	}

	hasher, err := password.NewHasher(password.Params{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MinPasswordBytes: cfg.Password.MinLength,
	})
	if err != nil {
		return nil, err
	}

	signingMethod := jwt.MethodEd25519
	if cfg.JWT.SigningMethod == "hs256" {
		signingMethod = jwt.MethodHS256
	}
	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: signingMethod,
		PrivateKey:    cfg.JWT.PrivateKey,
		PublicKey:     cfg.JWT.PublicKey,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		RequireIAT:    cfg.JWT.RequireIAT,
		KeyID:         cfg.JWT.KeyID,
		VerifyKeys:    cfg.JWT.VerifyKeys,
	})
	if err != nil {
		return nil, err
	}

	sender := b.sender
	if sender == nil {
		sender = delivery.NewLogSender(logger)
	}

	var auditor *internalaudit.Dispatcher
	if cfg.Audit.Enabled {
		sink := b.sink
		if sink == nil {
			sink = internalaudit.NewZerologSink(logger)
		}
		auditor = internalaudit.NewDispatcher(internalaudit.DispatcherConfig{
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, sink)
	}

	b.built = true
	return &Service{
		config:   cfg,
		users:    b.users,
		hasher:   hasher,
		tokens:   tokens,
		sessions: session.NewStore(b.redis, cfg.Session.KeyPrefix),
		otps:     otp.NewStore(b.redis, cfg.OTP.KeyPrefix),
		limiter:  rate.New(b.redis),
		sender:   sender,
		auditor:  auditor,
		metrics:  NewMetrics(cfg.Metrics),
		logger:   logger,
	}, nil
}
