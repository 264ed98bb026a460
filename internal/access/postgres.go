package access

import (
	"context"
	"database/sql"
	"fmt"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. Levels live in the
// access_levels reference table; the ordinal rank column is the comparison
// key, never the row id.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Modules(ctx context.Context) ([]Module, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, code, name, sort_order, active from modules
		  where active order by sort_order, code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var modules []Module
	for rows.Next() {
		var m Module
		if err := rows.Scan(&m.ID, &m.Code, &m.Name, &m.SortOrder, &m.Active); err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	return modules, rows.Err()
}

func (s *PGStore) RoleGrants(ctx context.Context, roleID string) ([]RoleGrant, error) {
	rows, err := s.db.QueryContext(ctx,
		`select m.code, al.rank
		   from role_permissions rp
		   join modules m on m.id = rp.module_id
		   join access_levels al on al.id = rp.level_id
		  where rp.role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []RoleGrant
	for rows.Next() {
		g := RoleGrant{RoleID: roleID}
		var rank int
		if err := rows.Scan(&g.ModuleCode, &rank); err != nil {
			return nil, err
		}
		g.Level = Level(rank)
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (s *PGStore) UserOverrides(ctx context.Context, userID string) ([]UserOverride, error) {
	rows, err := s.db.QueryContext(ctx,
		`select m.code, al.rank, uo.reason, uo.granted_by, uo.granted_at
		   from user_overrides uo
		   join modules m on m.id = uo.module_id
		   join access_levels al on al.id = uo.level_id
		  where uo.user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []UserOverride
	for rows.Next() {
		o := UserOverride{UserID: userID}
		var rank int
		if err := rows.Scan(&o.ModuleCode, &rank, &o.Reason, &o.GrantedBy, &o.GrantedAt); err != nil {
			return nil, err
		}
		o.Level = Level(rank)
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

func (s *PGStore) ReplaceRoleGrants(ctx context.Context, roleID string, entries []RoleGrant) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`delete from role_permissions where role_id=$1`, roleID); err != nil {
		return err
	}
	for _, e := range entries {
		res, err := tx.ExecContext(ctx,
			`insert into role_permissions(role_id, module_id, level_id)
			 select $1, m.id, al.id
			   from modules m, access_levels al
			  where m.code = $2 and al.rank = $3`,
			roleID, e.ModuleCode, int(e.Level),
		)
		if err != nil {
			return err
		}
		if err := requireInsert(res, e.ModuleCode); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PGStore) ReplaceUserOverrides(ctx context.Context, userID string, entries []UserOverride) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`delete from user_overrides where user_id=$1`, userID); err != nil {
		return err
	}
	for _, e := range entries {
		res, err := tx.ExecContext(ctx,
			`insert into user_overrides(user_id, module_id, level_id, reason, granted_by, granted_at)
			 select $1, m.id, al.id, $4, $5, now()
			   from modules m, access_levels al
			  where m.code = $2 and al.rank = $3`,
			userID, e.ModuleCode, int(e.Level), e.Reason, e.GrantedBy,
		)
		if err != nil {
			return err
		}
		if err := requireInsert(res, e.ModuleCode); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func requireInsert(res sql.Result, moduleCode string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownModule, moduleCode)
	}
	return nil
}
