package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leo2971998/trustagent/pkg/ap2"
)

// Postgres stores mandates in the mandates table. The payload and proof are
// jsonb; is_valid is never stored since the service recomputes it on read.
type Postgres struct {
	DB *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres { return &Postgres{DB: db} }

func (s *Postgres) CreateMandate(ctx context.Context, m ap2.Mandate) error {
	payload, err := json.Marshal(m.Payload)
	if err != nil {
		return err
	}
	proof, err := json.Marshal(m.Proof)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
INSERT INTO mandates(id,user_id,kind,status,payload,trust_score,risk_score,auto_approved,proof,created_at,expires_at,executed_at,linked_message_id)
VALUES($1,$2,$3,$4,$5::jsonb,$6,$7,$8,$9::jsonb,$10,$11,$12,$13)
`, m.ID, m.UserID, string(m.Kind), string(m.Status), string(payload), m.TrustScore, m.RiskScore, m.AutoApproved, string(proof), m.CreatedAt, m.ExpiresAt, m.ExecutedAt, nullable(m.LinkedMessageID))
	return err
}

func (s *Postgres) GetMandate(ctx context.Context, id string) (ap2.Mandate, error) {
	row := s.DB.QueryRow(ctx, `
SELECT id,user_id,kind,status,payload,trust_score,risk_score,auto_approved,proof,created_at,expires_at,executed_at,COALESCE(linked_message_id,'')
FROM mandates WHERE id=$1
`, id)
	m, err := scanMandate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ap2.Mandate{}, ErrNotFound
		}
		return ap2.Mandate{}, err
	}
	return m, nil
}

func (s *Postgres) ListMandates(ctx context.Context, userID string, status *ap2.Status) ([]ap2.Mandate, error) {
	query := `
SELECT id,user_id,kind,status,payload,trust_score,risk_score,auto_approved,proof,created_at,expires_at,executed_at,COALESCE(linked_message_id,'')
FROM mandates WHERE user_id=$1`
	args := []any{userID}
	if status != nil {
		query += ` AND status=$2`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ap2.Mandate
	for rows.Next() {
		m, err := scanMandate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Postgres) UpdateMandate(ctx context.Context, m ap2.Mandate) error {
	tag, err := s.DB.Exec(ctx, `
UPDATE mandates SET status=$2, executed_at=$3 WHERE id=$1
`, m.ID, string(m.Status), m.ExecutedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMandate(row rowScanner) (ap2.Mandate, error) {
	var (
		m             ap2.Mandate
		kind, status  string
		payloadJSON   []byte
		proofJSON     []byte
		linkedMessage string
	)
	if err := row.Scan(&m.ID, &m.UserID, &kind, &status, &payloadJSON, &m.TrustScore, &m.RiskScore, &m.AutoApproved, &proofJSON, &m.CreatedAt, &m.ExpiresAt, &m.ExecutedAt, &linkedMessage); err != nil {
		return ap2.Mandate{}, err
	}
	k, err := ap2.ParseKind(kind)
	if err != nil {
		return ap2.Mandate{}, err
	}
	st, err := ap2.ParseStatus(status)
	if err != nil {
		return ap2.Mandate{}, err
	}
	payload, err := ap2.UnmarshalPayload(k, payloadJSON)
	if err != nil {
		return ap2.Mandate{}, err
	}
	m.Kind = k
	m.Status = st
	m.Payload = payload
	m.LinkedMessageID = linkedMessage
	if len(proofJSON) > 0 && string(proofJSON) != "null" {
		var p ap2.Proof
		if err := json.Unmarshal(proofJSON, &p); err != nil {
			return ap2.Mandate{}, err
		}
		m.Proof = &p
	}
	return m, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
