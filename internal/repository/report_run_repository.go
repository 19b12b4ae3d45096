package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vhvplatform/go-inspection-alert-service/internal/domain"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/mongodb"
)

const reportRunsCollection = "report_runs"

// ReportRunRepository persists when each report type was last generated
type ReportRunRepository struct {
	client  *mongodb.MongoClient
	ownerID string
}

// NewReportRunRepository creates a new report run repository
func NewReportRunRepository(client *mongodb.MongoClient, ownerID string) *ReportRunRepository {
	return &ReportRunRepository{client: client, ownerID: ownerID}
}

// LastRuns returns the last generation time per report type
func (r *ReportRunRepository) LastRuns(ctx context.Context) (map[domain.ReportType]time.Time, error) {
	cursor, err := r.client.Collection(reportRunsCollection).Find(ctx, bson.M{"owner_id": r.ownerID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var runs []domain.ReportRun
	if err = cursor.All(ctx, &runs); err != nil {
		return nil, err
	}

	out := make(map[domain.ReportType]time.Time, len(runs))
	for _, run := range runs {
		out[run.Type] = run.GeneratedAt
	}
	return out, nil
}

// SaveRun records a report generation, replacing the previous one of that type
func (r *ReportRunRepository) SaveRun(ctx context.Context, run *domain.ReportRun) error {
	run.OwnerID = r.ownerID
	filter := bson.M{"owner_id": r.ownerID, "type": run.Type}
	opts := options.Replace().SetUpsert(true)

	_, err := r.client.Collection(reportRunsCollection).ReplaceOne(ctx, filter, run, opts)
	return err
}
