package db

import (
	"gorm.io/gorm"
)

// defaultPrices - стартовый прайс, заливается только в пустую таблицу.
var defaultPrices = []Price{
	{Type: TypeDevices2, Duration: DurationMonth1, Amount: 250},
	{Type: TypeDevices2, Duration: DurationMonth6, Amount: 1300},
	{Type: TypeDevices2, Duration: DurationYear1, Amount: 2400},
	{Type: TypeDevices4, Duration: DurationMonth1, Amount: 450},
	{Type: TypeDevices4, Duration: DurationMonth6, Amount: 2300},
	{Type: TypeDevices4, Duration: DurationYear1, Amount: 4200},
}

// SeedPrices заполняет прайс значениями по умолчанию, если он пуст.
func (r *Repository) SeedPrices() error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Price{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		return tx.Create(&defaultPrices).Error
	})
}
