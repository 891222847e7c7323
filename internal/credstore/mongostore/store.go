// Package mongostore reads linked Google credentials from a MongoDB
// collection of user documents.
//
// Each document carries the username, the email and a google_credentials
// array of {email, tokens, home} entries, in the shape written by the
// account-linking flow.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/teemow/driveproxy/internal/credstore"
)

// DefaultCollection is the collection holding user documents.
const DefaultCollection = "users"

// DefaultQueryTimeout bounds a single lookup or write.
const DefaultQueryTimeout = 5 * time.Second

// finder is the subset of *mongo.Collection used by Store.
type finder interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
}

// Config holds connection settings.
type Config struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration

	// QueryTimeout bounds each query. Defaults to DefaultQueryTimeout.
	QueryTimeout time.Duration
}

// Store implements credstore.Store on MongoDB.
type Store struct {
	client       *mongo.Client
	coll         finder
	queryTimeout time.Duration
}

var _ credstore.Store = (*Store)(nil)
var _ credstore.Seeder = (*Store)(nil)

// Open connects to MongoDB and verifies the primary is reachable.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongo database is required")
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout).
		SetTimeout(cfg.QueryTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Store{
		client:       client,
		coll:         client.Database(cfg.Database).Collection(cfg.Collection),
		queryTimeout: cfg.QueryTimeout,
	}, nil
}

// withQueryTimeout bounds ctx by the store's query timeout.
func (s *Store) withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	d := s.queryTimeout
	if d <= 0 {
		d = DefaultQueryTimeout
	}
	return context.WithTimeout(ctx, d)
}

// identityFilter matches the user document for id.
func identityFilter(id credstore.Identity) bson.D {
	return bson.D{
		{Key: "username", Value: id.Username},
		{Key: "email", Value: id.Email},
	}
}

// LookupLinkedAccounts implements credstore.Store. More than one document
// matching the identity is reported as credstore.ErrAmbiguous.
func (s *Store) LookupLinkedAccounts(ctx context.Context, id credstore.Identity) ([]credstore.LinkedAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, cancel := s.withQueryTimeout(ctx)
	defer cancel()

	opts := options.Find().
		SetLimit(2).
		SetProjection(bson.D{{Key: "google_credentials", Value: 1}})

	cur, err := s.coll.Find(ctx, identityFilter(id), opts)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	var users []credstore.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}

	switch len(users) {
	case 0:
		return nil, credstore.ErrNotFound
	case 1:
		return credstore.Dedupe(users[0].GoogleCredentials), nil
	default:
		return nil, credstore.ErrAmbiguous
	}
}

// PutUser upserts the document for user.
func (s *Store) PutUser(ctx context.Context, user credstore.User) error {
	if !user.Identity().Valid() {
		return fmt.Errorf("username and email are required")
	}
	if user.GoogleCredentials == nil {
		user.GoogleCredentials = []credstore.LinkedAccount{}
	}

	ctx, cancel := s.withQueryTimeout(ctx)
	defer cancel()
	_, err := s.coll.ReplaceOne(ctx, identityFilter(user.Identity()), user, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

// Ping implements credstore.Store.
func (s *Store) Ping(ctx context.Context) error {
	if s.client == nil {
		return errors.New("mongo client is not connected")
	}
	return s.client.Ping(ctx, readpref.Primary())
}

// Close implements credstore.Store.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}
