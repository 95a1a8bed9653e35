package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Koksbox/dream-interpreter/internal/dbx"
	"github.com/Koksbox/dream-interpreter/internal/entities"
	"github.com/Koksbox/dream-interpreter/internal/logging"
	"github.com/Koksbox/dream-interpreter/internal/repository"
)

type Channel string

const (
	ChannelWeb      Channel = "web"
	ChannelTelegram Channel = "telegram"
)

// Credential is what an adapter knows about the caller.
//
// Web: Phone is the login credential. Telegram: TelegramID is always set,
// Phone only when the user shared a contact, CachedUserID when the chat
// already resolved a user earlier in the conversation. ContactVerified marks
// a CachedUserID that came from the sender's own shared contact; it is
// trusted even when that user is bound to another Telegram id.
type Credential struct {
	Channel         Channel
	Phone           string
	TelegramID      string
	CachedUserID    int64
	ContactVerified bool
}

// UserLocker serializes work per user within the process.
type UserLocker interface {
	Lock(userID int64) func()
}

type IdentityResolver struct {
	store repository.Manager
	log   logging.Logger
	now   func() time.Time
}

func NewIdentityResolver(store repository.Manager, log logging.Logger) *IdentityResolver {
	return &IdentityResolver{store: store, log: log, now: time.Now}
}

// Resolve maps a credential to one canonical user. created reports whether
// the user was registered by this call.
func (r *IdentityResolver) Resolve(ctx context.Context, cred Credential) (*entities.User, bool, error) {
	switch {
	case cred.Channel == ChannelWeb:
		return r.resolveByPhone(ctx, cred.Phone, "")
	case cred.Channel == ChannelTelegram && cred.Phone != "":
		return r.resolveByPhone(ctx, cred.Phone, cred.TelegramID)
	case cred.Channel == ChannelTelegram:
		u, err := r.resolveTelegram(ctx, cred)
		return u, false, err
	}
	return nil, false, fmt.Errorf("unknown channel %q", cred.Channel)
}

func (r *IdentityResolver) resolveTelegram(ctx context.Context, cred Credential) (*entities.User, error) {
	users := r.store.Users(r.store.DB())

	if cred.CachedUserID != 0 {
		u, err := users.GetByID(ctx, cred.CachedUserID)
		if err != nil {
			return nil, err
		}
		if u != nil && (cred.ContactVerified || u.TelegramID == cred.TelegramID) {
			return u, nil
		}
	}

	if cred.TelegramID == "" {
		return nil, entities.ErrUnknownIdentity
	}
	u, err := users.GetByTelegramID(ctx, cred.TelegramID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, entities.ErrUnknownIdentity
	}
	return u, nil
}

func (r *IdentityResolver) resolveByPhone(ctx context.Context, rawPhone, telegramID string) (*entities.User, bool, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return nil, false, err
	}

	var (
		user     *entities.User
		created  bool
		unlinked bool
	)
	err = r.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		users := r.store.Users(tx)
		u, c, err := users.GetOrCreateByPhone(ctx, phone, r.now())
		if err != nil {
			return err
		}
		user, created = u, c
		if telegramID == "" || user.TelegramID == telegramID {
			return nil
		}
		owner, err := users.GetByTelegramID(ctx, telegramID)
		if err != nil {
			return err
		}
		if owner != nil && owner.ID != user.ID {
			return entities.ErrIdentityConflict
		}
		// Already bound to another Telegram account: sign in, keep the binding.
		if user.TelegramID != "" {
			unlinked = true
			return nil
		}
		if err := users.AttachTelegramID(ctx, user.ID, telegramID); err != nil {
			return err
		}
		user.TelegramID = telegramID
		return nil
	})
	if err != nil {
		if errors.Is(err, entities.ErrIdentityConflict) {
			r.log.Warn(ctx, "telegram identity conflict", "phone", phone, "telegram_id", telegramID)
		}
		return nil, false, err
	}
	if created {
		r.log.Info(ctx, "user registered", "user_id", user.ID, "channel", channelOf(telegramID))
	}
	if unlinked {
		r.log.Info(ctx, "contact matched a user linked to another telegram account",
			"user_id", user.ID, "telegram_id", telegramID)
	}
	return user, created, nil
}

// Link attaches telegramID to an existing user, e.g. from a web deep link.
func (r *IdentityResolver) Link(ctx context.Context, userID int64, telegramID string) (*entities.User, error) {
	var user *entities.User
	err := r.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		users := r.store.Users(tx)
		u, err := users.LockByID(ctx, userID)
		if err != nil {
			return err
		}
		if u.TelegramID != telegramID {
			if err := attachTelegram(ctx, users, u, telegramID); err != nil {
				return err
			}
			u.TelegramID = telegramID
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.log.Info(ctx, "telegram linked", "user_id", userID)
	return user, nil
}

func attachTelegram(ctx context.Context, users repository.Users, u *entities.User, telegramID string) error {
	if u.TelegramID != "" {
		return entities.ErrIdentityConflict
	}
	owner, err := users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return err
	}
	if owner != nil && owner.ID != u.ID {
		return entities.ErrIdentityConflict
	}
	return users.AttachTelegramID(ctx, u.ID, telegramID)
}

func channelOf(telegramID string) Channel {
	if telegramID != "" {
		return ChannelTelegram
	}
	return ChannelWeb
}
