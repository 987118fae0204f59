package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/raysh454/lotsync/internal/logging"
	"github.com/raysh454/lotsync/internal/model"
	"github.com/raysh454/lotsync/internal/utils"
)

const vehicleColumns = `id, dealership_id, year, make, model, trim, body_type, exterior_color,
	interior_color, transmission, drivetrain, fuel_type, price, odometer, images, badges,
	carfax_badges, description, vdp_content, highlights, tech_specs, vin, stock_number,
	dealer_vdp_url, url_key, local_images, last_scraped_at, deal_rating, cross_source_price,
	cross_source_url, cross_source_images, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVehicle(row rowScanner) (*model.VehicleRecord, error) {
	var (
		rec                                                  model.VehicleRecord
		price, crossPrice                                    sql.NullFloat64
		odometer, lastScraped                                sql.NullInt64
		images, badges, carfax, highlights, specs, localImgs string
		urlKey, crossImgs                                    string
		createdAt, updatedAt                                 int64
	)
	err := row.Scan(
		&rec.ID, &rec.DealershipID, &rec.Year, &rec.Make, &rec.Model, &rec.Trim, &rec.BodyType,
		&rec.ExteriorColor, &rec.InteriorColor, &rec.Transmission, &rec.Drivetrain, &rec.FuelType,
		&price, &odometer, &images, &badges, &carfax, &rec.Description, &rec.VDPContent,
		&highlights, &specs, &rec.VIN, &rec.StockNumber, &rec.DealerVDPURL, &urlKey, &localImgs,
		&lastScraped, &rec.DealRating, &crossPrice, &rec.CrossSourceURL, &crossImgs,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if price.Valid {
		rec.Price = model.Ptr(price.Float64)
	}
	if odometer.Valid {
		rec.Odometer = model.Ptr(int(odometer.Int64))
	}
	if crossPrice.Valid {
		rec.CrossSourcePrice = model.Ptr(crossPrice.Float64)
	}
	if lastScraped.Valid {
		rec.LastScrapedAt = model.Ptr(fromUnix(lastScraped.Int64))
	}
	rec.CreatedAt = fromUnix(createdAt)
	rec.UpdatedAt = fromUnix(updatedAt)

	for _, col := range []struct {
		raw string
		dst *[]string
	}{
		{images, &rec.Images},
		{badges, &rec.Badges},
		{carfax, &rec.CarfaxBadges},
		{highlights, &rec.Highlights},
		{localImgs, &rec.LocalImages},
		{crossImgs, &rec.CrossSourceImages},
	} {
		if err := decodeList(col.raw, col.dst); err != nil {
			return nil, fmt.Errorf("decode vehicle %s: %w", rec.ID, err)
		}
	}
	if specs != "" && specs != "{}" {
		if err := json.Unmarshal([]byte(specs), &rec.TechSpecs); err != nil {
			return nil, fmt.Errorf("decode vehicle %s tech specs: %w", rec.ID, err)
		}
	}
	return &rec, nil
}

func scanVehicles(rows *sql.Rows) ([]model.VehicleRecord, error) {
	defer rows.Close()
	var out []model.VehicleRecord
	for rows.Next() {
		rec, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func decodeList(raw string, dst *[]string) error {
	if raw == "" || raw == "[]" || raw == "null" {
		*dst = nil
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

func encodeList(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func encodeMap(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullTime(p *time.Time) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toUnix(*p), Valid: true}
}

func (s *SQLiteStore) queryOne(ctx context.Context, query string, args ...any) (*model.VehicleRecord, error) {
	rec, err := scanVehicle(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// FindByURL returns the dealership's record whose detail page URL matches
// rawURL after normalization, exactly or at a path boundary.
func (s *SQLiteStore) FindByURL(ctx context.Context, dealershipID, rawURL string) (*model.VehicleRecord, error) {
	key := utils.ListingKey(rawURL)
	if key == "" {
		return nil, ErrNotFound
	}
	return s.queryOne(ctx, `SELECT `+vehicleColumns+` FROM vehicles
		WHERE dealership_id = ? AND url_key != '' AND (
			url_key = ?
			OR substr(url_key, 1, length(?) + 1) = ? || '/'
			OR substr(?, 1, length(url_key) + 1) = url_key || '/')
		ORDER BY (url_key = ?) DESC, created_at ASC
		LIMIT 1`,
		dealershipID, key, key, key, key, key)
}

// FindByVIN matches case-insensitively.
func (s *SQLiteStore) FindByVIN(ctx context.Context, dealershipID, vin string) (*model.VehicleRecord, error) {
	vin = strings.TrimSpace(vin)
	if vin == "" {
		return nil, ErrNotFound
	}
	return s.queryOne(ctx, `SELECT `+vehicleColumns+` FROM vehicles
		WHERE dealership_id = ? AND vin = ? COLLATE NOCASE
		ORDER BY created_at ASC LIMIT 1`, dealershipID, vin)
}

// FindByYearMakeModel returns records with the same year, make and model,
// oldest first.
func (s *SQLiteStore) FindByYearMakeModel(ctx context.Context, dealershipID string, year int, makeName, modelName string) ([]model.VehicleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+vehicleColumns+` FROM vehicles
		WHERE dealership_id = ? AND year = ?
		  AND lower(trim(make)) = lower(trim(?)) AND lower(trim(model)) = lower(trim(?))
		ORDER BY created_at ASC`, dealershipID, year, makeName, modelName)
	if err != nil {
		return nil, fmt.Errorf("find by year/make/model: %w", err)
	}
	return scanVehicles(rows)
}

// ListByDealership returns every record of a dealership, oldest first.
func (s *SQLiteStore) ListByDealership(ctx context.Context, dealershipID string) ([]model.VehicleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+vehicleColumns+` FROM vehicles
		WHERE dealership_id = ? ORDER BY created_at ASC, id ASC`, dealershipID)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	return scanVehicles(rows)
}

// Get returns one record by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.VehicleRecord, error) {
	return s.queryOne(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = ?`, id)
}

// Count returns the number of records a dealership has.
func (s *SQLiteStore) Count(ctx context.Context, dealershipID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vehicles WHERE dealership_id = ?`, dealershipID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count vehicles: %w", err)
	}
	return n, nil
}

// Insert writes a new record.
func (s *SQLiteStore) Insert(ctx context.Context, rec model.VehicleRecord) error {
	if rec.ID == "" || rec.DealershipID == "" {
		return fmt.Errorf("insert vehicle: id and dealership are required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO vehicles (`+vehicleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.DealershipID, rec.Year, rec.Make, rec.Model, rec.Trim, rec.BodyType,
		rec.ExteriorColor, rec.InteriorColor, rec.Transmission, rec.Drivetrain, rec.FuelType,
		nullFloat(rec.Price), nullInt(rec.Odometer), encodeList(rec.Images), encodeList(rec.Badges),
		encodeList(rec.CarfaxBadges), rec.Description, rec.VDPContent, encodeList(rec.Highlights),
		encodeMap(rec.TechSpecs), rec.VIN, rec.StockNumber, rec.DealerVDPURL,
		utils.ListingKey(rec.DealerVDPURL), encodeList(rec.LocalImages), nullTime(rec.LastScrapedAt),
		rec.DealRating, nullFloat(rec.CrossSourcePrice), rec.CrossSourceURL, encodeList(rec.CrossSourceImages),
		toUnix(rec.CreatedAt), toUnix(rec.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
		}
		return fmt.Errorf("insert vehicle %s: %w", rec.ID, err)
	}
	return nil
}

// Update rewrites the scraped fields of an existing record. Local images
// and enrichment fields have their own writers and are left alone.
func (s *SQLiteStore) Update(ctx context.Context, rec model.VehicleRecord) error {
	res, err := s.db.ExecContext(ctx, `UPDATE vehicles SET
			year = ?, make = ?, model = ?, trim = ?, body_type = ?, exterior_color = ?,
			interior_color = ?, transmission = ?, drivetrain = ?, fuel_type = ?, price = ?,
			odometer = ?, images = ?, badges = ?, carfax_badges = ?, description = ?,
			vdp_content = ?, highlights = ?, tech_specs = ?, vin = ?, stock_number = ?,
			dealer_vdp_url = ?, url_key = ?, last_scraped_at = ?, updated_at = ?
		WHERE id = ? AND dealership_id = ?`,
		rec.Year, rec.Make, rec.Model, rec.Trim, rec.BodyType, rec.ExteriorColor,
		rec.InteriorColor, rec.Transmission, rec.Drivetrain, rec.FuelType, nullFloat(rec.Price),
		nullInt(rec.Odometer), encodeList(rec.Images), encodeList(rec.Badges),
		encodeList(rec.CarfaxBadges), rec.Description, rec.VDPContent, encodeList(rec.Highlights),
		encodeMap(rec.TechSpecs), rec.VIN, rec.StockNumber, rec.DealerVDPURL,
		utils.ListingKey(rec.DealerVDPURL), nullTime(rec.LastScrapedAt), toUnix(s.now()),
		rec.ID, rec.DealershipID,
	)
	if err != nil {
		return fmt.Errorf("update vehicle %s: %w", rec.ID, err)
	}
	return expectOne(res, rec.ID)
}

// SetLocalImages stores the durable image URLs of a vehicle.
func (s *SQLiteStore) SetLocalImages(ctx context.Context, vehicleID string, urls []string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE vehicles SET local_images = ?, updated_at = ? WHERE id = ?`,
		encodeList(urls), toUnix(s.now()), vehicleID)
	if err != nil {
		return fmt.Errorf("set local images %s: %w", vehicleID, err)
	}
	return expectOne(res, vehicleID)
}

// UpdateEnrichment writes the cross-source fields. Primary images are never
// touched here.
func (s *SQLiteStore) UpdateEnrichment(ctx context.Context, rec model.VehicleRecord) error {
	res, err := s.db.ExecContext(ctx, `UPDATE vehicles SET
			deal_rating = ?, cross_source_price = ?, cross_source_url = ?, cross_source_images = ?, updated_at = ?
		WHERE id = ? AND dealership_id = ?`,
		rec.DealRating, nullFloat(rec.CrossSourcePrice), rec.CrossSourceURL, encodeList(rec.CrossSourceImages),
		toUnix(s.now()), rec.ID, rec.DealershipID)
	if err != nil {
		return fmt.Errorf("update enrichment %s: %w", rec.ID, err)
	}
	return expectOne(res, rec.ID)
}

// ListStale returns records not scraped since before (or never), oldest
// first, so a capped cleanup removes the longest-missing vehicles.
func (s *SQLiteStore) ListStale(ctx context.Context, dealershipID string, before time.Time) ([]model.VehicleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+vehicleColumns+` FROM vehicles
		WHERE dealership_id = ? AND (last_scraped_at IS NULL OR last_scraped_at < ?)
		ORDER BY last_scraped_at IS NOT NULL, last_scraped_at ASC, created_at ASC`,
		dealershipID, toUnix(before))
	if err != nil {
		return nil, fmt.Errorf("list stale vehicles: %w", err)
	}
	return scanVehicles(rows)
}

// DeleteBatch deletes each vehicle in its own transaction, dependents first.
// A failed vehicle is reported and the batch continues. Only context
// cancellation aborts the batch.
func (s *SQLiteStore) DeleteBatch(ctx context.Context, ids []string) (DeleteResult, error) {
	res := DeleteResult{Failed: map[string]error{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := s.deleteOne(ctx, id); err != nil {
			s.logger.Warn("delete vehicle failed",
				logging.Field{Key: "vehicle_id", Value: id},
				logging.Field{Key: "error", Value: err})
			res.Failed[id] = err
			continue
		}
		res.Deleted = append(res.Deleted, id)
	}
	return res, nil
}

func (s *SQLiteStore) deleteOne(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer s.rollback(tx)

	for _, q := range []string{
		`DELETE FROM vehicle_views WHERE vehicle_id = ?`,
		`DELETE FROM conversations WHERE vehicle_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("delete dependents: %w", err)
		}
	}
	r, err := tx.ExecContext(ctx, `DELETE FROM vehicles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete vehicle: %w", err)
	}
	if err := expectOne(r, id); err != nil {
		return err
	}
	return tx.Commit()
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
