package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/plugng/plug-backend/internal/app/domain/notification"
	"github.com/plugng/plug-backend/internal/app/domain/opportunity"
	"github.com/plugng/plug-backend/internal/app/domain/tag"
	"github.com/plugng/plug-backend/internal/app/domain/user"
	"github.com/plugng/plug-backend/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL. Schema lives
// in schema.sql next to this file; the unique constraints there back the
// duplicate-application and duplicate-review guarantees.
type Store struct {
	db *sql.DB
}

var _ storage.OpportunityStore = (*Store)(nil)
var _ storage.ApplicationStore = (*Store)(nil)
var _ storage.ReviewStore = (*Store)(nil)
var _ storage.UserStore = (*Store)(nil)
var _ storage.TagStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

// --- OpportunityStore -------------------------------------------------------

const opportunityColumns = `
	id, title, responsibilities, budget, deadline, status, plugger_id,
	achiever_id, allowed_plans, verified_only, country_id, location_id,
	lga_id, tag_ids, occupation_id, created_at, updated_at`

func (s *Store) CreateOpportunity(ctx context.Context, opp opportunity.Opportunity) (opportunity.Opportunity, error) {
	if opp.ID == "" {
		opp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	opp.CreatedAt = now
	opp.UpdatedAt = now
	if opp.Status == "" {
		opp.Status = opportunity.StatusAvailable
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO opportunities (
			id, title, responsibilities, budget, deadline, status, plugger_id,
			achiever_id, allowed_plans, verified_only, country_id, location_id,
			lga_id, tag_ids, occupation_id, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10,
			NULLIF($11, ''), NULLIF($12, ''), NULLIF($13, ''), $14,
			NULLIF($15, ''), $16, $17)
	`, opp.ID, opp.Title, opp.Responsibilities, opp.Budget, opp.Deadline,
		string(opp.Status), opp.PluggerID, opp.AchieverID,
		pq.Array(opp.AllowedPlans), opp.VerifiedOnly, opp.CountryID,
		opp.LocationID, opp.LGAID, pq.Array(opp.TagIDs), opp.OccupationID,
		opp.CreatedAt, opp.UpdatedAt)
	if err != nil {
		return opportunity.Opportunity{}, err
	}
	return opp, nil
}

func scanOpportunity(scanner interface{ Scan(...interface{}) error }) (opportunity.Opportunity, error) {
	var (
		opp          opportunity.Opportunity
		status       string
		achieverID   sql.NullString
		countryID    sql.NullString
		locationID   sql.NullString
		lgaID        sql.NullString
		occupationID sql.NullString
		allowedPlans pq.StringArray
		tagIDs       pq.StringArray
	)
	err := scanner.Scan(&opp.ID, &opp.Title, &opp.Responsibilities, &opp.Budget,
		&opp.Deadline, &status, &opp.PluggerID, &achieverID, &allowedPlans,
		&opp.VerifiedOnly, &countryID, &locationID, &lgaID, &tagIDs,
		&occupationID, &opp.CreatedAt, &opp.UpdatedAt)
	if err != nil {
		return opportunity.Opportunity{}, err
	}
	opp.Status = opportunity.Status(status)
	opp.AchieverID = achieverID.String
	opp.CountryID = countryID.String
	opp.LocationID = locationID.String
	opp.LGAID = lgaID.String
	opp.OccupationID = occupationID.String
	opp.AllowedPlans = []string(allowedPlans)
	opp.TagIDs = []string(tagIDs)
	return opp, nil
}

func (s *Store) GetOpportunity(ctx context.Context, id string, include storage.Include) (opportunity.Opportunity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+opportunityColumns+`
		FROM opportunities
		WHERE id = $1
	`, id)

	opp, err := scanOpportunity(row)
	if err != nil {
		return opportunity.Opportunity{}, mapNotFound(err)
	}

	if include.Applications {
		if opp.Applications, err = s.ListApplications(ctx, id); err != nil {
			return opportunity.Opportunity{}, err
		}
	}
	if include.Reviews {
		if opp.Reviews, err = s.ListReviews(ctx, id); err != nil {
			return opportunity.Opportunity{}, err
		}
	}
	return opp, nil
}

func (s *Store) ListOpportunities(ctx context.Context, filter storage.OpportunityFilter) ([]opportunity.Opportunity, error) {
	query := `SELECT ` + opportunityColumns + ` FROM opportunities WHERE 1=1`
	var args []interface{}
	if filter.PluggerID != "" {
		args = append(args, filter.PluggerID)
		query += ` AND plugger_id = $1`
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOpportunities(rows)
}

func collectOpportunities(rows *sql.Rows) ([]opportunity.Opportunity, error) {
	var result []opportunity.Opportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, opp)
	}
	return result, rows.Err()
}

func (s *Store) DeleteOpportunity(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM opportunities WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateOpportunityStatus(ctx context.Context, id string, expected, next opportunity.Status) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE opportunities
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`, id, string(expected), string(next), time.Now().UTC())
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (s *Store) SetAchiever(ctx context.Context, opportunityID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE opportunities
		SET achiever_id = $2, updated_at = $3
		WHERE id = $1 AND achiever_id IS NULL
	`, opportunityID, userID, time.Now().UTC())
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (s *Store) FindRecentByPluggerTitle(ctx context.Context, pluggerID, title string, since time.Time) ([]opportunity.Opportunity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+opportunityColumns+`
		FROM opportunities
		WHERE plugger_id = $1 AND lower(title) = lower($2) AND created_at >= $3
	`, pluggerID, title, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOpportunities(rows)
}

func (s *Store) FindPendingWithoutReviewByPlugger(ctx context.Context, pluggerID string) ([]opportunity.Opportunity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+opportunityColumns+`
		FROM opportunities o
		WHERE o.plugger_id = $1
		  AND o.status = 'pending'
		  AND o.achiever_id IS NOT NULL
		  AND NOT EXISTS (
			SELECT 1 FROM reviews r
			WHERE r.opportunity_id = o.id AND r.author_id = o.plugger_id
		  )
	`, pluggerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOpportunities(rows)
}

func (s *Store) FindExpiringBetween(ctx context.Context, from, to time.Time) ([]opportunity.Opportunity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+opportunityColumns+`
		FROM opportunities
		WHERE status = 'available' AND deadline >= $1 AND deadline <= $2
		ORDER BY deadline
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOpportunities(rows)
}

// --- ApplicationStore -------------------------------------------------------

func (s *Store) AddApplication(ctx context.Context, opportunityID, userID string, at time.Time) (bool, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO applications (opportunity_id, user_id, applied_at)
		VALUES ($1, $2, $3)
	`, opportunityID, userID, at.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) CountApplications(ctx context.Context, opportunityID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM applications WHERE opportunity_id = $1
	`, opportunityID).Scan(&count)
	return count, err
}

func (s *Store) ListApplications(ctx context.Context, opportunityID string) ([]opportunity.Application, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT opportunity_id, user_id, applied_at
		FROM applications
		WHERE opportunity_id = $1
		ORDER BY applied_at
	`, opportunityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []opportunity.Application
	for rows.Next() {
		var a opportunity.Application
		if err := rows.Scan(&a.OpportunityID, &a.UserID, &a.AppliedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *Store) HasApplied(ctx context.Context, opportunityID, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM applications WHERE opportunity_id = $1 AND user_id = $2
		)
	`, opportunityID, userID).Scan(&exists)
	return exists, err
}

func (s *Store) CountUserApplicationsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM applications WHERE user_id = $1 AND applied_at >= $2
	`, userID, since).Scan(&count)
	return count, err
}

// --- ReviewStore ------------------------------------------------------------

func (s *Store) AddReview(ctx context.Context, rev opportunity.Review) (opportunity.Review, bool, error) {
	if rev.ID == "" {
		rev.ID = uuid.NewString()
	}
	rev.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reviews (id, opportunity_id, author_id, subject_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rev.ID, rev.OpportunityID, rev.AuthorID, rev.SubjectID, rev.Rating, rev.Comment, rev.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return opportunity.Review{}, false, nil
		}
		return opportunity.Review{}, false, err
	}
	return rev, true, nil
}

func (s *Store) ListReviews(ctx context.Context, opportunityID string) ([]opportunity.Review, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, opportunity_id, author_id, subject_id, rating, comment, created_at
		FROM reviews
		WHERE opportunity_id = $1
		ORDER BY created_at
	`, opportunityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []opportunity.Review
	for rows.Next() {
		var r opportunity.Review
		if err := rows.Scan(&r.ID, &r.OpportunityID, &r.AuthorID, &r.SubjectID, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *Store) CountReviews(ctx context.Context, opportunityID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reviews WHERE opportunity_id = $1
	`, opportunityID).Scan(&count)
	return count, err
}

// --- UserStore --------------------------------------------------------------

const userColumns = `
	id, name, plan_type, plan_expires_at, profile_verified, skill_tag_ids,
	occupation_id, country_id, location_id, lga_id, has_pending_review,
	created_at, updated_at`

func scanUser(scanner interface{ Scan(...interface{}) error }) (user.User, error) {
	var (
		u            user.User
		expiresAt    sql.NullTime
		occupationID sql.NullString
		countryID    sql.NullString
		locationID   sql.NullString
		lgaID        sql.NullString
		skills       pq.StringArray
	)
	err := scanner.Scan(&u.ID, &u.Name, &u.PlanType, &expiresAt,
		&u.ProfileVerified, &skills, &occupationID, &countryID, &locationID,
		&lgaID, &u.HasPendingReview, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		u.PlanExpiresAt = &t
	}
	u.OccupationID = occupationID.String
	u.CountryID = countryID.String
	u.LocationID = locationID.String
	u.LGAID = lgaID.String
	u.SkillTagIDs = []string(skills)
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id)
	u, err := scanUser(row)
	if err != nil {
		return user.User{}, mapNotFound(err)
	}
	return u, nil
}

func (s *Store) ListCandidates(ctx context.Context, filter storage.CandidateFilter) ([]user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE 1=1`
	var args []interface{}
	if len(filter.PlanTypes) > 0 {
		args = append(args, pq.Array(filter.PlanTypes))
		query += ` AND plan_type = ANY($1)`
	}
	query += ` ORDER BY id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (s *Store) UserOwnsContentWithTags(ctx context.Context, userID string, tagIDs []string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM content_items
			WHERE owner_id = $1 AND tag_ids && $2
		)
	`, userID, pq.Array(tagIDs)).Scan(&exists)
	return exists, err
}

func (s *Store) SetHasPendingReview(ctx context.Context, userID string, pending bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET has_pending_review = $2, updated_at = $3 WHERE id = $1
	`, userID, pending, time.Now().UTC())
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) FindPlansExpiringBetween(ctx context.Context, from, to time.Time) ([]user.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE plan_expires_at IS NOT NULL
		  AND plan_expires_at >= $1 AND plan_expires_at <= $2
		ORDER BY id
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

// --- TagStore ---------------------------------------------------------------

func (s *Store) GetTags(ctx context.Context, ids []string) ([]tag.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, kind, COALESCE(parent_id, '')
		FROM tags
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []tag.Tag
	for rows.Next() {
		var t tag.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Kind, &t.ParentID); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (s *Store) AllMinor(ctx context.Context, ids []string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tags WHERE id = ANY($1) AND kind = 'minor'
	`, pq.Array(ids)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count == len(ids), nil
}

func (s *Store) LocationInCountry(ctx context.Context, locationID, countryID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM locations WHERE id = $1 AND country_id = $2
		)
	`, locationID, countryID).Scan(&exists)
	return exists, err
}

func (s *Store) LGAInLocation(ctx context.Context, lgaID, locationID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM lgas WHERE id = $1 AND location_id = $2
		)
	`, lgaID, locationID).Scan(&exists)
	return exists, err
}

// --- NotificationStore ------------------------------------------------------

func (s *Store) AddNotifications(ctx context.Context, msgs []notification.Notification) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO notifications (id, user_id, event, opportunity_id, actor_id, read, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, msg := range msgs {
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}
		if _, err := stmt.ExecContext(ctx, msg.ID, msg.UserID, string(msg.Event),
			msg.OpportunityID, msg.ActorID, msg.Read, msg.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListNotificationsForUser(ctx context.Context, userID string, limit int) ([]notification.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, event, COALESCE(opportunity_id, ''), COALESCE(actor_id, ''), read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []notification.Notification
	for rows.Next() {
		var (
			n     notification.Notification
			event string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &event, &n.OpportunityID, &n.ActorID, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Event = notification.EventKind(event)
		result = append(result, n)
	}
	return result, rows.Err()
}

func (s *Store) MarkNotificationsRead(ctx context.Context, userID string, ids []string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read = TRUE WHERE user_id = $1 AND id = ANY($2)
	`, userID, pq.Array(ids))
	return err
}
