package analysisRepository

import (
	"BillboardAnalyzer/internal/api/analysis"
	"BillboardAnalyzer/internal/entity"
	contextPkg "BillboardAnalyzer/pkg/context"
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type SubmissionDB struct {
	ID            sql.NullString  `db:"id"`
	ImageFilename sql.NullString  `db:"image_filename"`
	ImageURL      sql.NullString  `db:"image_url"`
	Latitude      sql.NullFloat64 `db:"latitude"`
	Longitude     sql.NullFloat64 `db:"longitude"`
	IsAuthorized  sql.NullBool    `db:"is_authorized"`
	Reason        sql.NullString  `db:"reason"`
	State         sql.NullString  `db:"state"`
	Detections    sql.NullInt64   `db:"detections"`
	CreatedAt     time.Time       `db:"created_at"`
}

func (r *submissionRepository) CreateSubmission(c context.Context, submission entity.Submission) error {
	requestID := contextPkg.GetRequestID(c)

	createdAt := submission.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	argsKV := map[string]interface{}{
		"id":             submission.ID,
		"image_filename": submission.ImageFilename,
		"image_url":      sql.NullString{String: submission.ImageURL, Valid: submission.ImageURL != ""},
		"latitude":       submission.Latitude,
		"longitude":      submission.Longitude,
		"is_authorized":  submission.IsAuthorized,
		"reason":         submission.Reason,
		"state":          submission.State,
		"detections":     submission.Detections,
		"created_at":     createdAt,
	}

	query, args, err := sqlx.Named(queryCreateSubmission, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to build SQL query for CreateSubmission")
		return err
	}
	query = r.q.Rebind(query)

	if _, err = r.q.ExecContext(c, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Database error when creating submission")
		return err
	}

	return nil
}

func (r *submissionRepository) GetSubmissionByID(c context.Context, id string) (entity.Submission, error) {
	requestID := contextPkg.GetRequestID(c)
	var submission SubmissionDB

	argsKV := map[string]interface{}{
		"id": id,
	}

	query, args, err := sqlx.Named(queryGetSubmissionByID, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetSubmissionByID named query preparation err")
		return entity.Submission{}, err
	}

	query = r.q.Rebind(query)

	if err := r.q.QueryRowxContext(c, query, args...).StructScan(&submission); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"id":         id,
			}).Warn("GetSubmissionByID no rows found")
			return entity.Submission{}, analysis.ErrSubmissionNotFound
		}
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetSubmissionByID execution err")
		return entity.Submission{}, err
	}

	return r.makeSubmission(submission), nil
}

func (r *submissionRepository) ListSubmissions(c context.Context, limit int) ([]entity.Submission, error) {
	requestID := contextPkg.GetRequestID(c)
	var submissions []SubmissionDB

	argsKV := map[string]interface{}{
		"limit": limit,
	}

	query, args, err := sqlx.Named(queryListSubmissions, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("ListSubmissions named query preparation err")
		return nil, err
	}

	query = r.q.Rebind(query)

	if err := r.q.SelectContext(c, &submissions, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("ListSubmissions execution err")
		return nil, err
	}

	result := make([]entity.Submission, 0, len(submissions))
	for _, submission := range submissions {
		result = append(result, r.makeSubmission(submission))
	}

	return result, nil
}

func (r *submissionRepository) makeSubmission(submission SubmissionDB) entity.Submission {
	return entity.Submission{
		ID:            submission.ID.String,
		ImageFilename: submission.ImageFilename.String,
		ImageURL:      submission.ImageURL.String,
		Latitude:      submission.Latitude.Float64,
		Longitude:     submission.Longitude.Float64,
		IsAuthorized:  submission.IsAuthorized.Bool,
		Reason:        submission.Reason.String,
		State:         submission.State.String,
		Detections:    int(submission.Detections.Int64),
		CreatedAt:     submission.CreatedAt,
	}
}
