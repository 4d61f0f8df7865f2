package credentials

import (
	"context"

	"github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/securestore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StorageKey is the key the serialized State lives under.
const StorageKey = "credential_state"

// Store persists State as one unit in a securestore.Store.
type Store struct {
	kv     securestore.Store
	logger zerolog.Logger
}

type StoreOption func(*Store)

func WithLogger(l zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = l
	}
}

func NewStore(kv securestore.Store, opts ...StoreOption) *Store {
	s := &Store{kv: kv, logger: log.Logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the persisted state. It never fails: missing, unreadable or corrupt data
// is logged and the empty state is returned.
func (s *Store) Load(ctx context.Context) State {
	data, err := s.kv.Get(ctx, StorageKey)
	if errors.Is(err, securestore.ErrNotFound) {
		s.logger.Debug().Msg("no stored credentials")
		return State{}
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read stored credentials")
		return State{}
	}
	state, err := Unmarshal(data)
	if err != nil {
		s.logger.Warn().Err(err).Msg("discarding stored credentials")
		return State{}
	}
	s.logger.Debug().Int64("seq", state.Sequence).Msg("credentials restored")
	return state
}

// Save writes the whole state. Callers treat failure as recoverable: the in-memory state
// stays authoritative for the life of the process.
func (s *Store) Save(ctx context.Context, state State) error {
	data, err := Marshal(state)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, StorageKey, data); err != nil {
		return errors.Wrapf(err, "save credentials seq %d", state.Sequence)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	return errors.Wrapf(s.kv.Delete(ctx, StorageKey), "clear credentials")
}
