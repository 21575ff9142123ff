package repository

import (
	"context"
	"log"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"marketchat/internal/domain/entity"
	"marketchat/internal/domain/repository"
	"marketchat/pkg/errors"
)

type firestoreReportRepository struct {
	client *firestore.Client
}

func NewFirestoreReportRepository(client *firestore.Client) repository.ReportRepository {
	return &firestoreReportRepository{
		client: client,
	}
}

func (r *firestoreReportRepository) collection() *firestore.CollectionRef {
	return r.client.Collection("message_reports")
}

func (r *firestoreReportRepository) Create(ctx context.Context, report *entity.MessageReport) error {
	if report.ID == "" {
		report.ID = newID()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}

	if _, err := r.collection().Doc(report.ID).Create(ctx, report); err != nil {
		return errors.Internal("Failed to create report", err)
	}
	return nil
}

func (r *firestoreReportRepository) GetByID(ctx context.Context, id string) (*entity.MessageReport, error) {
	doc, err := r.collection().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Report", err)
		}
		return nil, errors.Internal("Failed to get report", err)
	}

	var report entity.MessageReport
	if err := doc.DataTo(&report); err != nil {
		return nil, errors.Internal("Failed to parse report data", err)
	}
	return &report, nil
}

func (r *firestoreReportRepository) Review(ctx context.Context, id string, allowedFrom []entity.ReportStatus, to entity.ReportStatus, reviewerID, notes string, at time.Time) (*entity.MessageReport, error) {
	ref := r.collection().Doc(id)

	var reviewed *entity.MessageReport
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var report entity.MessageReport
		if err := snap.DataTo(&report); err != nil {
			return errors.Internal("Failed to parse report data", err)
		}
		if !statusIn(report.Status, allowedFrom) {
			return errors.InvalidState("Report cannot move from " + string(report.Status) + " to " + string(to))
		}

		applyReview(&report, to, reviewerID, notes, at)
		reviewed = &report
		return tx.Set(ref, &report)
	})
	if err != nil {
		return nil, wrapFirestore("Failed to review report", err, "Report")
	}
	return reviewed, nil
}

func (r *firestoreReportRepository) List(ctx context.Context, filter entity.ReportFilter) ([]*entity.MessageReport, error) {
	query := r.collection().OrderBy("createdAt", firestore.Desc)
	if filter.Status != "" {
		query = query.Where("status", "==", string(filter.Status))
	}
	if filter.ConversationID != "" {
		query = query.Where("conversationId", "==", filter.ConversationID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var reports []*entity.MessageReport
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			log.Printf("Firestore error while listing reports: %v", err)
			return nil, errors.Internal("Failed to list reports", err)
		}
		var report entity.MessageReport
		if err := doc.DataTo(&report); err != nil {
			log.Printf("Error parsing report %s: %v", doc.Ref.ID, err)
			continue
		}
		reports = append(reports, &report)
	}
	return reports, nil
}

func statusIn(s entity.ReportStatus, allowed []entity.ReportStatus) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}

func applyReview(report *entity.MessageReport, to entity.ReportStatus, reviewerID, notes string, at time.Time) {
	reviewedAt := at
	report.Status = to
	report.ReviewerID = reviewerID
	report.ReviewNotes = notes
	report.ReviewedAt = &reviewedAt
}
