package clinic

import (
	"context"
	"database/sql"
	"errors"
)

var _ PatientStore = (*PGPatientStore)(nil)

// PGPatientStore implements PatientStore using PostgreSQL.
type PGPatientStore struct {
	db *sql.DB
}

func NewPGPatientStore(db *sql.DB) *PGPatientStore {
	return &PGPatientStore{db: db}
}

func (s *PGPatientStore) Create(ctx context.Context, p *Patient) error {
	_, err := s.db.ExecContext(ctx,
		`insert into patients(id, tenant_id, full_name, born_on) values($1,$2,$3,nullif($4,''))`,
		p.ID, p.TenantID, p.FullName, p.BornOn,
	)
	return err
}

func (s *PGPatientStore) Find(ctx context.Context, tenantID, id string) (*Patient, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, tenant_id, full_name, coalesce(born_on::text, ''), created_at
		   from patients where tenant_id=$1 and id=$2`, tenantID, id)
	var p Patient
	if err := row.Scan(&p.ID, &p.TenantID, &p.FullName, &p.BornOn, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *PGPatientStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*Patient, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, tenant_id, full_name, coalesce(born_on::text, ''), created_at
		   from patients where tenant_id=$1 order by created_at desc limit $2`,
		tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.TenantID, &p.FullName, &p.BornOn, &p.CreatedAt); err != nil {
			return nil, err
		}
		patients = append(patients, &p)
	}
	return patients, rows.Err()
}
