package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"organigramm/internal/config"
	"organigramm/internal/db"
	"organigramm/internal/domain"
	"organigramm/internal/engine/auth"
	"organigramm/internal/events"
	"organigramm/internal/orgchart"
	"organigramm/internal/repo"
)

// ErrVersionConflict is returned when an update names a version that is no
// longer the stored one.
var ErrVersionConflict = orgchart.ErrConflict

// ErrAlreadyExists is returned when creating a practice whose id is taken.
var ErrAlreadyExists = errors.New("already exists")

// PositionCache is an optional read-through cache of a practice's active
// positions. Get reports the practice's generation on a miss; Set must drop
// the list when Invalidate ran since that generation was read.
type PositionCache interface {
	Get(ctx context.Context, practiceID string) ([]domain.Position, uint64, bool)
	Set(ctx context.Context, practiceID string, gen uint64, positions []domain.Position)
	Invalidate(ctx context.Context, practiceID string)
}

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Auth   auth.Service
	Cache  PositionCache
	Logger *zap.Logger
	Now    func() time.Time
}

func New(conn *sql.DB, dialect db.Dialect) Engine {
	return Engine{
		DB:     conn,
		Repo:   repo.Repo{DB: conn, Dialect: dialect},
		Events: events.Writer{DB: conn, Dialect: dialect},
		Auth:   auth.Service{DB: conn, Dialect: dialect},
		Logger: zap.NewNop(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) log() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}()

// check runs the struct validator and reports the first failure as an
// orgchart.ValidationError.
func check(opts any) error {
	err := validate.Struct(opts)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		reason := f.Tag()
		if f.Param() != "" {
			reason += "=" + f.Param()
		}
		return orgchart.ValidationError{Field: f.Field(), Reason: reason}
	}
	return err
}

// invalidate runs after a commit, so it ignores cancellation of ctx.
func (e Engine) invalidate(ctx context.Context, practiceID string) {
	if e.Cache != nil {
		e.Cache.Invalidate(context.WithoutCancel(ctx), practiceID)
	}
}

// PracticeCreateOptions are parameters for creating a practice.
type PracticeCreateOptions struct {
	ID      string `json:"id" validate:"required,max=64,excludesall=/ "`
	Name    string `json:"name" validate:"max=200"`
	ActorID string `json:"actor_id" validate:"required"`
}

// CreatePractice creates a tenant with the default config and makes the
// creating actor its admin.
func (e Engine) CreatePractice(ctx context.Context, opts PracticeCreateOptions) (domain.Practice, error) {
	opts.ID = strings.TrimSpace(opts.ID)
	opts.Name = strings.TrimSpace(opts.Name)
	if err := check(opts); err != nil {
		return domain.Practice{}, err
	}
	if opts.Name == "" {
		opts.Name = opts.ID
	}
	if _, err := e.Repo.GetPractice(ctx, opts.ID); err == nil {
		return domain.Practice{}, fmt.Errorf("practice %s: %w", opts.ID, ErrAlreadyExists)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Practice{}, err
	}
	p := domain.Practice{ID: opts.ID, Name: opts.Name, CreatedAt: e.stamp()}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Practice{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertPractice(ctx, tx, p); err != nil {
		return domain.Practice{}, fmt.Errorf("insert practice: %w", err)
	}
	if err := e.Repo.UpsertPracticeConfig(ctx, tx, p.ID, config.Default(p.ID, p.Name)); err != nil {
		return domain.Practice{}, fmt.Errorf("insert practice config: %w", err)
	}
	if err := e.Repo.EnsureActor(ctx, tx, opts.ActorID, p.CreatedAt); err != nil {
		return domain.Practice{}, err
	}
	if err := e.Repo.AssignRole(ctx, tx, p.ID, opts.ActorID, "admin"); err != nil {
		return domain.Practice{}, err
	}
	if _, err := e.Events.Append(ctx, tx, events.PracticeCreate, p.ID, "practice", p.ID, opts.ActorID, events.EventPayload{"name": p.Name}); err != nil {
		return domain.Practice{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Practice{}, err
	}
	e.log().Info("practice created", zap.String("practice_id", p.ID), zap.String("actor_id", opts.ActorID))
	return p, nil
}

func (e Engine) GetPractice(ctx context.Context, id string) (domain.Practice, error) {
	return e.Repo.GetPractice(ctx, id)
}

func (e Engine) ListPractices(ctx context.Context) ([]domain.Practice, error) {
	return e.Repo.ListPractices(ctx)
}

// PracticeConfig returns the stored config of a practice, or the default one
// when none was imported.
func (e Engine) PracticeConfig(ctx context.Context, practiceID string) (*config.Config, error) {
	p, err := e.Repo.GetPractice(ctx, practiceID)
	if err != nil {
		return nil, err
	}
	cfg, err := e.Repo.GetPracticeConfig(ctx, practiceID)
	if errors.Is(err, repo.ErrNotFound) {
		return config.Default(p.ID, p.Name), nil
	}
	return cfg, err
}

// ImportConfig replaces the config of a practice.
func (e Engine) ImportConfig(ctx context.Context, practiceID string, cfg *config.Config, actorID string) error {
	if _, err := e.Repo.GetPractice(ctx, practiceID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertPracticeConfig(ctx, tx, practiceID, cfg); err != nil {
		return err
	}
	payload := events.EventPayload{"webhooks": len(cfg.Webhooks), "roles": len(cfg.Roles)}
	if _, err := e.Events.Append(ctx, tx, events.ConfigUpdate, practiceID, "practice", practiceID, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

// GrantRole binds roleID to actorID inside a practice.
func (e Engine) GrantRole(ctx context.Context, practiceID, actorID, roleID, grantedBy string) error {
	if strings.TrimSpace(actorID) == "" {
		return orgchart.ValidationError{Field: "actor_id", Reason: "required"}
	}
	if _, err := e.Repo.GetPractice(ctx, practiceID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	ok, err := e.Repo.RoleExists(ctx, tx, roleID)
	if err != nil {
		return err
	}
	if !ok {
		return orgchart.ValidationError{Field: "role", Reason: "unknown role " + roleID}
	}
	if err := e.Repo.EnsureActor(ctx, tx, actorID, e.stamp()); err != nil {
		return err
	}
	if err := e.Repo.AssignRole(ctx, tx, practiceID, actorID, roleID); err != nil {
		return err
	}
	if _, err := e.Events.Append(ctx, tx, events.RBACGrant, practiceID, "rbac", actorID, grantedBy, events.EventPayload{"role": roleID}); err != nil {
		return err
	}
	return tx.Commit()
}

// RevokeRole removes a role binding. Revoking a binding that does not exist
// is not an error.
func (e Engine) RevokeRole(ctx context.Context, practiceID, actorID, roleID, revokedBy string) error {
	if _, err := e.Repo.GetPractice(ctx, practiceID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.RevokeRole(ctx, tx, practiceID, actorID, roleID); err != nil {
		return err
	}
	if _, err := e.Events.Append(ctx, tx, events.RBACRevoke, practiceID, "rbac", actorID, revokedBy, events.EventPayload{"role": roleID}); err != nil {
		return err
	}
	return tx.Commit()
}

// ListEvents returns the newest events of a practice first.
func (e Engine) ListEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	if f.PracticeID != "" {
		if _, err := e.Repo.GetPractice(ctx, f.PracticeID); err != nil {
			return nil, err
		}
	}
	return e.Repo.LatestEvents(ctx, f)
}

// CreateAPIKey stores a new key for actorID and returns it with the plain
// secret, which is not kept.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string) (domain.APIKey, string, error) {
	if strings.TrimSpace(actorID) == "" {
		return domain.APIKey{}, "", orgchart.ValidationError{Field: "actor_id", Reason: "required"}
	}
	secret := "orga_" + strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(secret),
		CreatedAt: e.stamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureActor(ctx, tx, actorID, key.CreatedAt); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, secret, nil
}

// ListAPIKeys returns the keys of actorID, newest first. Hashes are blanked.
func (e Engine) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	keys, err := e.Repo.ListAPIKeys(ctx, actorID)
	if err != nil {
		return nil, err
	}
	for i := range keys {
		keys[i].KeyHash = ""
	}
	return keys, nil
}

// DeleteAPIKey removes one of actorID's keys. Keys of other actors are
// reported as not found.
func (e Engine) DeleteAPIKey(ctx context.Context, actorID, id string) error {
	keys, err := e.Repo.ListAPIKeys(ctx, actorID)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if k.ID == id {
			return e.Repo.DeleteAPIKey(ctx, id)
		}
	}
	return fmt.Errorf("api key %s: %w", id, repo.ErrNotFound)
}
