package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"atelierpos/internal/domain"
	"atelierpos/internal/store"
	"atelierpos/internal/xid"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the tables the store needs when they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const productColumns = `id, tenant_id, name, category_id, is_serial, price_sell, price_rent, rent_unit, can_sell, can_rent`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.CategoryID, &p.IsSerial, &p.PriceSell, &p.PriceRent, &p.RentUnit, &p.CanSell, &p.CanRent)
	return p, err
}

func (s *Store) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, productID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, tenantID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE tenant_id = $1
		ORDER BY category_id, name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if product.ID == "" || product.TenantID == "" || product.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if product.PriceSell < 0 || product.PriceRent < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if product.RentUnit == "" {
		product.RentUnit = domain.RentPerEvent
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
	`, product.ID, product.TenantID, product.Name, product.CategoryID, product.IsSerial,
		product.PriceSell, product.PriceRent, product.RentUnit, product.CanSell, product.CanRent)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) CreateUnit(ctx context.Context, unit domain.StockUnit) (*domain.StockUnit, error) {
	if unit.ProductID == "" || unit.Code == "" || !unit.Variant.Complete() {
		return nil, store.ErrInvalidTransaction
	}
	if unit.ID == "" {
		unit.ID = xid.New("unit")
	}
	if unit.Status == "" {
		unit.Status = domain.UnitAvailable
	}
	if !unit.Status.Valid() {
		return nil, store.ErrInvalidTransaction
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_units (id, code, tenant_id, product_id, size, color, branch_id, status, is_for_sale, is_for_rent, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
	`, unit.ID, unit.Code, unit.TenantID, unit.ProductID, unit.Variant.Size, unit.Variant.Color,
		unit.BranchID, unit.Status, unit.IsForSale, unit.IsForRent)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	created := unit
	return &created, nil
}

func (s *Store) CreateLot(ctx context.Context, lot domain.StockLot) (*domain.StockLot, error) {
	if lot.ProductID == "" || lot.Quantity < 0 || !lot.Variant.Complete() {
		return nil, store.ErrInvalidTransaction
	}
	if lot.ID == "" {
		lot.ID = xid.New("lot")
	}
	if lot.CreatedAt.IsZero() {
		lot.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_lots (id, tenant_id, product_id, size, color, branch_id, quantity, is_for_sale, is_for_rent, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
	`, lot.ID, lot.TenantID, lot.ProductID, lot.Variant.Size, lot.Variant.Color,
		lot.BranchID, lot.Quantity, lot.IsForSale, lot.IsForRent, lot.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	created := lot
	return &created, nil
}

func (s *Store) ListUnits(ctx context.Context, filter store.Filter) ([]domain.StockUnit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, tenant_id, product_id, size, color, branch_id, status, is_for_sale, is_for_rent
		FROM stock_units
		WHERE ($1 = '' OR tenant_id = $1)
		  AND ($2 = '' OR product_id = $2)
		  AND ($3 = '' OR branch_id = $3)
		  AND ($4 = '' OR size = $4)
		  AND ($5 = '' OR color = $5)
		ORDER BY code, id
	`, filter.TenantID, filter.ProductID, filter.BranchID, filter.Size, filter.Color)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	units := make([]domain.StockUnit, 0, 32)
	for rows.Next() {
		var u domain.StockUnit
		if err := rows.Scan(&u.ID, &u.Code, &u.TenantID, &u.ProductID, &u.Variant.Size, &u.Variant.Color,
			&u.BranchID, &u.Status, &u.IsForSale, &u.IsForRent); err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return units, nil
}

// ListLots returns lots oldest first, the order FIFO allocation consumes them.
func (s *Store) ListLots(ctx context.Context, filter store.Filter) ([]domain.StockLot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, product_id, size, color, branch_id, quantity, is_for_sale, is_for_rent, created_at
		FROM stock_lots
		WHERE ($1 = '' OR tenant_id = $1)
		  AND ($2 = '' OR product_id = $2)
		  AND ($3 = '' OR branch_id = $3)
		  AND ($4 = '' OR size = $4)
		  AND ($5 = '' OR color = $5)
		ORDER BY created_at ASC, id ASC
	`, filter.TenantID, filter.ProductID, filter.BranchID, filter.Size, filter.Color)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lots := make([]domain.StockLot, 0, 16)
	for rows.Next() {
		var l domain.StockLot
		if err := rows.Scan(&l.ID, &l.TenantID, &l.ProductID, &l.Variant.Size, &l.Variant.Color,
			&l.BranchID, &l.Quantity, &l.IsForSale, &l.IsForRent, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.CreatedAt = l.CreatedAt.UTC()
		lots = append(lots, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lots, nil
}

// ListCommitments returns active commitments only.
func (s *Store) ListCommitments(ctx context.Context, filter store.Filter) ([]domain.Commitment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, kind, product_id, size, color, branch_id, start_date, end_date, quantity, unit_ids, active
		FROM commitments
		WHERE active = true
		  AND ($1 = '' OR tenant_id = $1)
		  AND ($2 = '' OR product_id = $2)
		  AND ($3 = '' OR branch_id = $3)
		  AND ($4 = '' OR size = $4)
		  AND ($5 = '' OR color = $5)
		ORDER BY start_date, id
	`, filter.TenantID, filter.ProductID, filter.BranchID, filter.Size, filter.Color)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	commitments := make([]domain.Commitment, 0, 32)
	for rows.Next() {
		var c domain.Commitment
		var start, end time.Time
		var unitIDs []byte
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Kind, &c.ProductID, &c.Variant.Size, &c.Variant.Color,
			&c.BranchID, &start, &end, &c.Quantity, &unitIDs, &c.Active); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(unitIDs, &c.UnitIDs); err != nil {
			return nil, fmt.Errorf("commitment %s unit_ids: %w", c.ID, err)
		}
		if len(c.UnitIDs) == 0 {
			c.UnitIDs = nil
		}
		c.Range = domain.NewDateRange(start, end)
		commitments = append(commitments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return commitments, nil
}

func (s *Store) SetUnitStatus(ctx context.Context, unitID string, status domain.UnitStatus) error {
	if !status.Valid() {
		return store.ErrInvalidTransaction
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE stock_units
		SET status = $2, updated_at = now()
		WHERE id = $1
	`, unitID, status)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AdjustLotQuantity applies delta atomically and refuses to drive a lot
// below zero.
func (s *Store) AdjustLotQuantity(ctx context.Context, lotID string, delta int) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var qty int
	err = tx.QueryRowContext(ctx, `SELECT quantity FROM stock_lots WHERE id = $1 FOR UPDATE`, lotID).Scan(&qty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	if qty+delta < 0 {
		return fmt.Errorf("lot %s has %d, cannot apply %d: %w", lotID, qty, delta, store.ErrInsufficientStock)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE stock_lots
		SET quantity = quantity + $2, updated_at = now()
		WHERE id = $1
	`, lotID, delta); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) CreateCommitment(ctx context.Context, commitment domain.Commitment) (*domain.Commitment, error) {
	if commitment.ProductID == "" || commitment.Quantity < 1 || !commitment.Range.Valid() {
		return nil, store.ErrInvalidTransaction
	}
	if commitment.ID == "" {
		commitment.ID = xid.New("cmt")
	}
	if commitment.Kind == "" {
		commitment.Kind = domain.CommitmentReservation
	}
	commitment.Active = true
	commitment.Range = domain.NewDateRange(commitment.Range.Start, commitment.Range.End)
	unitIDs, err := marshalList(commitment.UnitIDs)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO commitments (id, tenant_id, kind, product_id, size, color, branch_id, start_date, end_date, quantity, unit_ids, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now())
	`, commitment.ID, commitment.TenantID, commitment.Kind, commitment.ProductID,
		commitment.Variant.Size, commitment.Variant.Color, commitment.BranchID,
		commitment.Range.Start, commitment.Range.End, commitment.Quantity, unitIDs, commitment.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	created := commitment
	return &created, nil
}

func (s *Store) ReleaseCommitment(ctx context.Context, commitmentID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE commitments SET active = false WHERE id = $1`, commitmentID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreatePromotion(ctx context.Context, promo domain.Promotion) (*domain.Promotion, error) {
	promo.Name = strings.TrimSpace(promo.Name)
	if promo.TenantID == "" || promo.Name == "" || !promo.Discount.Valid() {
		return nil, store.ErrInvalidTransaction
	}
	if promo.Type == "" {
		promo.Type = domain.PromotionStandard
	}
	if promo.Scope.Kind == "" {
		promo.Scope = domain.GlobalScope()
	}
	if promo.ID == "" {
		promo.ID = xid.New("promo")
	}
	if promo.CreatedAt.IsZero() {
		promo.CreatedAt = time.Now().UTC()
	}

	targets, err := marshalList(promo.Scope.TargetIDs)
	if err != nil {
		return nil, err
	}
	appliesTo, err := marshalList(promo.AppliesTo)
	if err != nil {
		return nil, err
	}
	items, err := marshalList(promo.BundleItems)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO promotions (
			id, tenant_id, name, type, discount_kind, discount_value, scope_kind,
			target_ids, applies_to, bundle_items, starts_at, ends_at, active, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, promo.ID, promo.TenantID, promo.Name, promo.Type, promo.Discount.Kind, promo.Discount.Value,
		promo.Scope.Kind, targets, appliesTo, items, nullTime(promo.StartsAt), nullTime(promo.EndsAt),
		promo.Active, promo.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	saved := promo
	return &saved, nil
}

func (s *Store) ListActivePromotions(ctx context.Context, tenantID string, now time.Time) ([]domain.Promotion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, type, discount_kind, discount_value, scope_kind,
		       target_ids, applies_to, bundle_items, starts_at, ends_at, active, created_at
		FROM promotions
		WHERE tenant_id = $1
		  AND active = true
		  AND (starts_at IS NULL OR starts_at <= $2)
		  AND (ends_at IS NULL OR ends_at >= $2)
		ORDER BY created_at ASC, id ASC
	`, tenantID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	promos := make([]domain.Promotion, 0, 16)
	for rows.Next() {
		var (
			p                         domain.Promotion
			targets, appliesTo, items []byte
			startsAt, endsAt          sql.NullTime
		)
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.Type, &p.Discount.Kind, &p.Discount.Value,
			&p.Scope.Kind, &targets, &appliesTo, &items, &startsAt, &endsAt, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(targets, &p.Scope.TargetIDs); err != nil {
			return nil, fmt.Errorf("promotion %s target_ids: %w", p.ID, err)
		}
		if err := json.Unmarshal(appliesTo, &p.AppliesTo); err != nil {
			return nil, fmt.Errorf("promotion %s applies_to: %w", p.ID, err)
		}
		if err := json.Unmarshal(items, &p.BundleItems); err != nil {
			return nil, fmt.Errorf("promotion %s bundle_items: %w", p.ID, err)
		}
		if startsAt.Valid {
			t := startsAt.Time.UTC()
			p.StartsAt = &t
		}
		if endsAt.Valid {
			t := endsAt.Time.UTC()
			p.EndsAt = &t
		}
		p.CreatedAt = p.CreatedAt.UTC()
		promos = append(promos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return promos, nil
}

func marshalList[T any](values []T) (string, error) {
	if values == nil {
		values = []T{}
	}
	payload, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ store.Repository = (*Store)(nil)
