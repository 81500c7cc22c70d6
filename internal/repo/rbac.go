package repo

import (
	"context"
	"database/sql"
	"sort"

	"organigramm/internal/domain"
)

func (r Repo) EnsureActor(ctx context.Context, tx *sql.Tx, actorID string, now string) error {
	_, err := r.conn(tx).ExecContext(ctx, r.q(`INSERT INTO actors(id, created_at) VALUES (?,?) ON CONFLICT DO NOTHING`), actorID, now)
	return err
}

func (r Repo) RoleExists(ctx context.Context, tx *sql.Tx, roleID string) (bool, error) {
	var n int
	err := r.conn(tx).QueryRowContext(ctx, r.q(`SELECT COUNT(*) FROM roles WHERE id=?`), roleID).Scan(&n)
	return n > 0, err
}

func (r Repo) AssignRole(ctx context.Context, tx *sql.Tx, practiceID, actorID, roleID string) error {
	_, err := r.conn(tx).ExecContext(ctx, r.q(`INSERT INTO actor_roles(practice_id, actor_id, role_id) VALUES (?,?,?) ON CONFLICT DO NOTHING`),
		practiceID, actorID, roleID)
	return err
}

func (r Repo) RevokeRole(ctx context.Context, tx *sql.Tx, practiceID, actorID, roleID string) error {
	_, err := r.conn(tx).ExecContext(ctx, r.q(`DELETE FROM actor_roles WHERE practice_id=? AND actor_id=? AND role_id=?`),
		practiceID, actorID, roleID)
	return err
}

// Membership returns the roles and the resulting permissions of an actor in
// a practice. Both lists are sorted.
func (r Repo) Membership(ctx context.Context, tx *sql.Tx, practiceID, actorID string) (domain.Membership, error) {
	m := domain.Membership{PracticeID: practiceID, ActorID: actorID}
	rows, err := r.conn(tx).QueryContext(ctx, r.q(`SELECT ar.role_id, rp.permission_id
FROM actor_roles ar LEFT JOIN role_permissions rp ON rp.role_id = ar.role_id
WHERE ar.practice_id=? AND ar.actor_id=?`), practiceID, actorID)
	if err != nil {
		return m, err
	}
	defer rows.Close()
	roles := map[string]bool{}
	perms := map[string]bool{}
	for rows.Next() {
		var role string
		var perm sql.NullString
		if err := rows.Scan(&role, &perm); err != nil {
			return m, err
		}
		roles[role] = true
		if perm.Valid {
			perms[perm.String] = true
		}
	}
	if err := rows.Err(); err != nil {
		return m, err
	}
	m.Roles = sortedKeys(roles)
	m.Permissions = sortedKeys(perms)
	return m, nil
}

// Memberships lists every practice the actor holds a role in.
func (r Repo) Memberships(ctx context.Context, actorID string) ([]domain.Membership, error) {
	rows, err := r.DB.QueryContext(ctx, r.q(`SELECT DISTINCT practice_id FROM actor_roles WHERE actor_id=? ORDER BY practice_id`), actorID)
	if err != nil {
		return nil, err
	}
	var practices []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		practices = append(practices, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]domain.Membership, 0, len(practices))
	for _, id := range practices {
		m, err := r.Membership(ctx, nil, id, actorID)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
