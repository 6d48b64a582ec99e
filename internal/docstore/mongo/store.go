// Package mongo persists notices and enrichments in MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/JakeFAU/noticewatch/internal/notice"
)

// ArchiveURLsField holds the set of archived attachment URLs on a notice.
const ArchiveURLsField = "s3_pdf_urls"

// Config names the database and collections.
type Config struct {
	URI                  string
	Database             string
	NoticeCollection     string
	EnrichmentCollection string
	ConnectTimeout       time.Duration
}

type collection interface {
	UpdateOne(ctx context.Context, filter any, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

type client interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
	Disconnect(ctx context.Context) error
}

// Store implements notice.NoticeStore.
type Store struct {
	client      client
	notices     collection
	enrichments collection
}

// New connects to MongoDB and verifies the server is reachable.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, errors.New("docstore.uri is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(cfg.ConnectTimeout)
	c, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := c.Ping(ctx, readpref.Primary()); err != nil {
		_ = c.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	db := c.Database(cfg.Database, options.Database().SetWriteConcern(
		&writeconcern.WriteConcern{W: 1, WTimeout: 5 * time.Second},
	))
	return NewWithCollections(c, db.Collection(cfg.NoticeCollection), db.Collection(cfg.EnrichmentCollection)), nil
}

// NewWithCollections builds a Store from existing handles.
func NewWithCollections(c client, notices, enrichments collection) *Store {
	return &Store{client: c, notices: notices, enrichments: enrichments}
}

// UpsertNotice writes the raw upstream record under _id = notice id.
func (s *Store) UpsertNotice(ctx context.Context, n notice.Notice) error {
	if n.ID == "" {
		return errors.New("notice id is required")
	}
	_, err := s.notices.UpdateOne(ctx, byID(n.ID), noticeUpdate(n), options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert notice %s: %w", n.ID, err)
	}
	return nil
}

// ApplyCoordinates sets the geocode result on an existing notice. A missing
// notice is left alone.
func (s *Store) ApplyCoordinates(ctx context.Context, noticeID string, rec notice.CoordinateRecord) error {
	_, err := s.notices.UpdateOne(ctx, byID(noticeID), coordinatesUpdate(rec), options.Update().SetUpsert(false))
	if err != nil {
		return fmt.Errorf("apply coordinates %s: %w", noticeID, err)
	}
	return nil
}

// UpsertEnrichment writes the extracted document under _id = key.
func (s *Store) UpsertEnrichment(ctx context.Context, rec notice.EnrichmentRecord) error {
	if rec.Key == "" {
		return errors.New("enrichment key is required")
	}
	_, err := s.enrichments.UpdateOne(ctx, byID(rec.Key), enrichmentUpdate(rec), options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert enrichment %s: %w", rec.Key, err)
	}
	return nil
}

// AddArchiveURL adds url to the notice's archive set.
func (s *Store) AddArchiveURL(ctx context.Context, noticeID, url string, at time.Time) error {
	_, err := s.notices.UpdateOne(ctx, byID(noticeID), archiveUpdate(url, at), options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("add archive url %s: %w", noticeID, err)
	}
	return nil
}

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func byID(id string) bson.M {
	return bson.M{"_id": id}
}

func noticeUpdate(n notice.Notice) bson.M {
	set := bson.M{}
	for k, v := range n.Raw {
		if k == "_id" {
			continue
		}
		set[k] = v
	}
	set["HOUSE_MANAGE_NO"] = n.ID
	if n.DetailURL != "" {
		set["detail_url"] = n.DetailURL
	}
	return bson.M{"$set": set}
}

func coordinatesUpdate(rec notice.CoordinateRecord) bson.M {
	set := bson.M{
		"x":              nil,
		"y":              nil,
		"geocode_status": string(rec.Status),
	}
	if rec.X != nil {
		set["x"] = *rec.X
	}
	if rec.Y != nil {
		set["y"] = *rec.Y
	}
	return bson.M{"$set": set}
}

func enrichmentUpdate(rec notice.EnrichmentRecord) bson.M {
	doc := rec.Document()
	delete(doc, "_id")
	return bson.M{"$set": bson.M(doc)}
}

func archiveUpdate(url string, at time.Time) bson.M {
	return bson.M{
		"$addToSet":    bson.M{ArchiveURLsField: url},
		"$setOnInsert": bson.M{"createdAt": at.UTC()},
	}
}
