package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"taja/model"
)

const photoColumns = `id, shop_id, object_key, content_type, size_bytes, date_created`

func AddShopPhotoInTx(ctx context.Context, tx *sqlx.Tx, p *model.ShopPhoto) error {
	if p.DateCreated.IsZero() {
		p.DateCreated = now()
	}
	const q = `
		INSERT INTO shop_photos (shop_id, object_key, content_type, size_bytes, date_created)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`
	err := tx.QueryRowxContext(ctx, tx.Rebind(q), p.ShopID, p.ObjectKey, p.ContentType, p.SizeBytes, p.DateCreated).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("AddShopPhotoInTx (Shop: %d) failed: %w", p.ShopID, err)
	}
	return nil
}

func ListShopPhotos(ctx context.Context, q sqlx.ExtContext, shopID int64) ([]model.ShopPhoto, error) {
	photos := []model.ShopPhoto{}
	err := sqlx.SelectContext(ctx, q, &photos, q.Rebind(`SELECT `+photoColumns+` FROM shop_photos WHERE shop_id = ? ORDER BY id`), shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos for shop %d: %w", shopID, err)
	}
	return photos, nil
}

// ListPhotosForShops groups the photos of every shop in shopIDs by shop id.
func ListPhotosForShops(ctx context.Context, q sqlx.ExtContext, shopIDs []int64) (map[int64][]model.ShopPhoto, error) {
	byShop := make(map[int64][]model.ShopPhoto, len(shopIDs))
	if len(shopIDs) == 0 {
		return byShop, nil
	}
	query, args, err := sqlx.In(`SELECT `+photoColumns+` FROM shop_photos WHERE shop_id IN (?) ORDER BY id`, shopIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build photo query: %w", err)
	}
	var photos []model.ShopPhoto
	if err := sqlx.SelectContext(ctx, q, &photos, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	for _, p := range photos {
		byShop[p.ShopID] = append(byShop[p.ShopID], p)
	}
	return byShop, nil
}

// DeleteShopPhotosInTx removes the photos in ids that belong to shopID and
// returns the rows that were removed. Ids from other shops are ignored.
func DeleteShopPhotosInTx(ctx context.Context, tx *sqlx.Tx, shopID int64, ids []int64) ([]model.ShopPhoto, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+photoColumns+` FROM shop_photos WHERE shop_id = ? AND id IN (?)`, shopID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build photo query: %w", err)
	}
	var doomed []model.ShopPhoto
	if err := tx.SelectContext(ctx, &doomed, tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load photos for deletion: %w", err)
	}
	for _, p := range doomed {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM shop_photos WHERE id = ?`), p.ID); err != nil {
			return nil, fmt.Errorf("failed to delete photo %d: %w", p.ID, err)
		}
	}
	return doomed, nil
}
