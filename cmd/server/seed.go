package main

import (
	"context"
	"fmt"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/service"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

var demoProducts = []models.Product{
	{SKU: "TSHIRT-BLK-M", Name: "Black T-Shirt (M)", Price: models.MustMoney("19.99"), Stock: 100, SellerID: 1001},
	{SKU: "MUG-CERAMIC", Name: "Ceramic Mug", Price: models.MustMoney("8.50"), Stock: 250, SellerID: 1001},
	{SKU: "HDPHN-BT-01", Name: "Bluetooth Headphones", Price: models.MustMoney("79.00"), Stock: 25, SellerID: 1002},
	{SKU: "BOOK-GO-PROG", Name: "Programming Go", Price: models.MustMoney("42.00"), Stock: 3, SellerID: 1003},
}

// seedDemoData loads a small catalogue and two discount codes into an empty store
func seedDemoData(ctx context.Context, db store.Storage, promotions *service.PromotionService) error {
	logger := util.GetLogger()

	existing, err := db.GetProducts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list products: %w", err)
	}
	if len(existing) > 0 {
		logger.Info("Catalogue already populated, skipping demo seed", zap.Int("products", len(existing)))
		return nil
	}

	for i := range demoProducts {
		p := demoProducts[i]
		if err := db.CreateProduct(ctx, &p); err != nil {
			return fmt.Errorf("failed to seed product %s: %w", p.SKU, err)
		}
	}

	now := time.Now()
	codes := []models.Promotion{
		{DiscountCode: "WELCOME10", DiscountPercentage: models.MustMoney("10"), ExpiryDate: now.AddDate(1, 0, 0)},
		{DiscountCode: "SPRING25", DiscountPercentage: models.MustMoney("25"), ExpiryDate: now.AddDate(0, 0, -1)},
	}
	for i := range codes {
		if err := promotions.CreatePromotion(ctx, &codes[i]); err != nil {
			return fmt.Errorf("failed to seed promotion %s: %w", codes[i].DiscountCode, err)
		}
	}

	logger.Info("Seeded demo data",
		zap.Int("products", len(demoProducts)),
		zap.Int("promotions", len(codes)))
	return nil
}
