package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/quill/internal/auth/domain"
	"github.com/aussiebroadwan/quill/internal/auth/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	usersCollection       = "users"
	credentialsCollection = "refresh_credentials"

	connectTimeout = 10 * time.Second
)

// Store is a MongoDB implementation of store.Store.
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	users *usersRepo
	creds *credentialsRepo
}

var _ store.Store = (*Store)(nil)

// NewStore connects to uri and uses the named database. The connection is
// verified with a primary ping before returning.
func NewStore(ctx context.Context, uri, database string) (*Store, error) {
	if database == "" {
		return nil, errors.New("mongodb: database name is required")
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(database)
	return &Store{
		client: client,
		db:     db,
		users:  &usersRepo{coll: db.Collection(usersCollection)},
		creds:  &credentialsRepo{coll: db.Collection(credentialsCollection)},
	}, nil
}

func (s *Store) Users() store.Users             { return s.users }
func (s *Store) Credentials() store.Credentials { return s.creds }

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// ApplyMigrations creates the indexes the repositories rely on. It is safe
// to run on every start.
func (s *Store) ApplyMigrations(ctx context.Context) error {
	_, err := s.db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("users_email_unique"),
	})
	if err != nil {
		return fmt.Errorf("create users indexes: %w", err)
	}

	_, err = s.db.Collection(credentialsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tokenHash", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("credentials_token_hash_unique"),
		},
		{
			Keys:    bson.D{{Key: "userId", Value: 1}},
			Options: options.Index().SetName("credentials_user_id"),
		},
		{
			// The server drops documents shortly after expiresAt passes.
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("credentials_expires_at_ttl"),
		},
	})
	if err != nil {
		return fmt.Errorf("create credential indexes: %w", err)
	}
	return nil
}

type userDoc struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"passwordHash"`
	Roles        []string  `bson:"roles"`
	Active       bool      `bson:"active"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

func toUserDoc(u domain.User) userDoc {
	return userDoc{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Roles:        domain.RoleStrings(u.Roles),
		Active:       u.Active,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (d userDoc) toDomain() domain.User {
	roles := make([]domain.Role, 0, len(d.Roles))
	for _, r := range d.Roles {
		if role, err := domain.ParseRole(r); err == nil {
			roles = append(roles, role)
		}
	}
	return domain.User{
		ID:           d.ID,
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Roles:        roles,
		Active:       d.Active,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type credentialDoc struct {
	ID           string     `bson:"_id"`
	UserID       string     `bson:"userId"`
	TokenHash    string     `bson:"tokenHash"`
	ExpiresAt    time.Time  `bson:"expiresAt"`
	Revoked      bool       `bson:"revoked"`
	RevokedAt    *time.Time `bson:"revokedAt,omitempty"`
	SupersededBy string     `bson:"supersededBy,omitempty"`
	CreatedAt    time.Time  `bson:"createdAt"`
}

func (d credentialDoc) toDomain() domain.Credential {
	c := domain.Credential{
		ID:           d.ID,
		UserID:       d.UserID,
		TokenHash:    d.TokenHash,
		ExpiresAt:    d.ExpiresAt,
		Revoked:      d.Revoked,
		SupersededBy: d.SupersededBy,
		CreatedAt:    d.CreatedAt,
	}
	if d.RevokedAt != nil {
		c.RevokedAt = *d.RevokedAt
	}
	return c
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return store.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return store.ErrAlreadyExists
	default:
		return err
	}
}

// DropDatabase removes the database and everything in it.
func (s *Store) DropDatabase(ctx context.Context) error {
	return s.db.Drop(ctx)
}
