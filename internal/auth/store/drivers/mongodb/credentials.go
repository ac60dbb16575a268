package mongodb

import (
	"context"
	"time"

	"github.com/aussiebroadwan/quill/internal/auth/domain"
	"github.com/aussiebroadwan/quill/internal/auth/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type credentialsRepo struct {
	coll *mongo.Collection
}

var _ store.Credentials = (*credentialsRepo)(nil)

func activeFilter(now time.Time) bson.M {
	return bson.M{"revoked": false, "expiresAt": bson.M{"$gt": now}}
}

func (r *credentialsRepo) CreateCredential(ctx context.Context, c domain.Credential) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := r.coll.InsertOne(ctx, credentialDoc{
		ID:        c.ID,
		UserID:    c.UserID,
		TokenHash: c.TokenHash,
		ExpiresAt: c.ExpiresAt,
		CreatedAt: c.CreatedAt,
	})
	return mapErr(err)
}

func (r *credentialsRepo) FindActiveCredential(
	ctx context.Context,
	hash string,
	now time.Time,
) (domain.Credential, error) {
	filter := activeFilter(now)
	filter["tokenHash"] = hash
	return r.findOne(ctx, filter)
}

// ConsumeCredential uses findAndModify, which matches and updates a single
// document atomically on the server.
func (r *credentialsRepo) ConsumeCredential(
	ctx context.Context,
	hash, successorID string,
	now time.Time,
) (domain.Credential, error) {
	filter := activeFilter(now)
	filter["tokenHash"] = hash

	update := bson.M{"$set": bson.M{
		"revoked":      true,
		"revokedAt":    now,
		"supersededBy": successorID,
	}}

	var doc credentialDoc
	err := r.coll.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return domain.Credential{}, mapErr(err)
	}
	return doc.toDomain(), nil
}

func (r *credentialsRepo) RevokeCredential(ctx context.Context, hash string, now time.Time) error {
	// Pipeline update so an earlier revokedAt is preserved.
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "revoked", Value: true},
			{Key: "revokedAt", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$revokedAt", now}}}},
		}}},
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"tokenHash": hash}, update)
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *credentialsRepo) DeleteCredential(ctx context.Context, hash string) (bool, error) {
	res, err := r.coll.DeleteOne(ctx, bson.M{"tokenHash": hash})
	if err != nil {
		return false, mapErr(err)
	}
	return res.DeletedCount > 0, nil
}

func (r *credentialsRepo) GetCredential(ctx context.Context, hash string) (domain.Credential, error) {
	return r.findOne(ctx, bson.M{"tokenHash": hash})
}

func (r *credentialsRepo) RevokeUserCredentials(
	ctx context.Context,
	userID string,
	now time.Time,
) (int64, error) {
	filter := activeFilter(now)
	filter["userId"] = userID

	res, err := r.coll.UpdateMany(ctx, filter, bson.M{"$set": bson.M{
		"revoked":   true,
		"revokedAt": now,
	}})
	if err != nil {
		return 0, mapErr(err)
	}
	return res.ModifiedCount, nil
}

// DeleteExpiredCredentials covers the window before the TTL monitor runs.
func (r *credentialsRepo) DeleteExpiredCredentials(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lte": now}})
	if err != nil {
		return 0, mapErr(err)
	}
	return res.DeletedCount, nil
}

func (r *credentialsRepo) findOne(ctx context.Context, filter bson.M) (domain.Credential, error) {
	var doc credentialDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return domain.Credential{}, mapErr(err)
	}
	return doc.toDomain(), nil
}
