package etl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/BartekS5/catalog-migrator/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	productsCollection = "products"
	countersCollection = "counters"
	mediaBucket        = "media"
	maxImageBytes      = 20 << 20
)

// MongoStore is the content store: products, their taxonomy terms and their
// sideloaded images (GridFS).
type MongoStore struct {
	Client   *mongo.Client
	db       *mongo.Database
	products *mongo.Collection
	counters *mongo.Collection
	bucket   *gridfs.Bucket
	http     *http.Client
	now      func() time.Time
}

func NewMongoStore(client *mongo.Client, database string) (*MongoStore, error) {
	db := client.Database(database)
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(mediaBucket))
	if err != nil {
		return nil, fmt.Errorf("failed to open media bucket: %w", err)
	}
	return &MongoStore{
		Client:   client,
		db:       db,
		products: db.Collection(productsCollection),
		counters: db.Collection(countersCollection),
		bucket:   bucket,
		http:     &http.Client{},
		now:      time.Now,
	}, nil
}

// EnsureIndexes creates the unique slug index the upsert relies on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.products.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "remote_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create product indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) FindBySlug(ctx context.Context, slug string) (*models.LocalProductEntity, error) {
	return s.findOne(ctx, bson.M{"slug": slug})
}

func (s *MongoStore) FindByID(ctx context.Context, id int64) (*models.LocalProductEntity, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (*models.LocalProductEntity, error) {
	var e models.LocalProductEntity
	err := s.products.FindOne(ctx, filter).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateOrUpdate upserts by slug. The numeric id and creation time are only
// written on insert.
func (s *MongoStore) CreateOrUpdate(ctx context.Context, e *models.LocalProductEntity) (bool, error) {
	id := e.ID
	if id == 0 {
		next, err := s.nextID(ctx)
		if err != nil {
			return false, err
		}
		id = next
	}

	now := s.now().UTC()
	update := bson.M{
		"$set": bson.M{
			"remote_id":         e.RemoteID,
			"title":             e.Title,
			"status":            e.Status,
			"type":              e.Type,
			"structured_fields": e.StructuredFields,
			"updated_at":        now,
		},
		"$setOnInsert": bson.M{
			"_id":        id,
			"created_at": now,
		},
	}

	res, err := s.products.UpdateOne(ctx, bson.M{"slug": e.Slug}, update, options.Update().SetUpsert(true))
	if err != nil {
		return false, err
	}
	e.UpdatedAt = now

	if res.UpsertedCount > 0 {
		e.ID = id
		e.CreatedAt = now
		return true, nil
	}
	if e.ID == 0 {
		// Someone else created the slug after our lookup.
		stored, err := s.FindBySlug(ctx, e.Slug)
		if err != nil {
			return false, err
		}
		if stored != nil {
			e.ID, e.CreatedAt, e.Image = stored.ID, stored.CreatedAt, stored.Image
		}
	}
	return false, nil
}

func (s *MongoStore) nextID(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": productsCollection},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate product id: %w", err)
	}
	return counter.Seq, nil
}

func (s *MongoStore) ScanIdentities(ctx context.Context) ([]models.ProductIdentity, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1, "remote_id": 1, "slug": 1, "type": 1})
	cursor, err := s.products.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var ids []models.ProductIdentity
	if err := cursor.All(ctx, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *MongoStore) Count(ctx context.Context) (int64, error) {
	return s.products.CountDocuments(ctx, bson.M{})
}

// Assign adds value to the entity's terms for taxonomy. Repeated calls are no-ops.
func (s *MongoStore) Assign(ctx context.Context, entityID int64, taxonomy, value string) error {
	_, err := s.products.UpdateOne(ctx,
		bson.M{"_id": entityID},
		bson.M{"$addToSet": bson.M{"taxonomy_refs." + taxonomy: value}},
	)
	return err
}

// SideloadAndAttach downloads rawURL into GridFS and sets it as the entity's
// image unless one was attached in the meantime.
func (s *MongoStore) SideloadAndAttach(ctx context.Context, rawURL string, e *models.LocalProductEntity) (*models.MediaRef, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image larger than %d bytes", maxImageBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("not an image (%s)", contentType)
	}

	filename := imageFilename(rawURL, e.Slug)
	if deadline, ok := ctx.Deadline(); ok {
		if err := s.bucket.SetWriteDeadline(deadline); err != nil {
			return nil, err
		}
	}
	fileID, err := s.bucket.UploadFromStream(filename, bytes.NewReader(data),
		options.GridFSUpload().SetMetadata(bson.M{
			"product_id":   e.ID,
			"source_url":   rawURL,
			"content_type": contentType,
		}))
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}

	ref := &models.MediaRef{
		FileID:      fileID.Hex(),
		SourceURL:   rawURL,
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(data)),
		AttachedAt:  s.now().UTC(),
	}
	res, err := s.products.UpdateOne(ctx,
		bson.M{"_id": e.ID, "image.file_id": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"image": ref}},
	)
	if err != nil {
		return nil, discardUpload(s.bucket.Delete, fileID, fmt.Errorf("attach failed: %w", err))
	}
	if res.MatchedCount == 0 {
		return nil, discardUpload(s.bucket.Delete, fileID, fmt.Errorf("product %d is missing or already has an image", e.ID))
	}
	return ref, nil
}

// discardUpload removes a file that could not be attached. A failed removal
// is joined to cause so the orphaned file id ends up in the run log.
func discardUpload(remove func(interface{}) error, fileID primitive.ObjectID, cause error) error {
	if err := remove(fileID); err != nil {
		return errors.Join(cause, fmt.Errorf("orphaned media file %s: %w", fileID.Hex(), err))
	}
	return cause
}

func imageFilename(rawURL, slug string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" {
			return base
		}
	}
	return slug
}
