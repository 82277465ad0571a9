package domain

import "github.com/shopspring/decimal"

// MoneyPlaces — точность денежных сумм (минимальная единица валюты).
const MoneyPlaces = 2

// MarkupPlaces — точность процента наценки, совпадает с колонкой markup_percent.
const MarkupPlaces = 4

var (
	hundred = decimal.NewFromInt(100)
	// maxMarkup — наибольшая наценка, которую вмещает NUMERIC(9, 4).
	maxMarkup = decimal.RequireFromString("99999.9999")
)

// ComputeFinalPrice считает цену продажи: base + base*markup/100 с округлением до копеек.
// При нулевой наценке возвращает базовую цену без изменений.
func ComputeFinalPrice(basePrice, markupPercent decimal.Decimal) (decimal.Decimal, error) {
	if err := ValidateBasePrice(basePrice); err != nil {
		return decimal.Decimal{}, err
	}
	if err := ValidateMarkup(markupPercent); err != nil {
		return decimal.Decimal{}, err
	}
	if markupPercent.IsZero() {
		return basePrice, nil
	}

	markup := basePrice.Mul(markupPercent).Div(hundred)
	return basePrice.Add(markup).Round(MoneyPlaces), nil
}

// ValidateBasePrice проверяет, что цена неотрицательна и не точнее копейки.
func ValidateBasePrice(price decimal.Decimal) error {
	if price.IsNegative() || !price.Equal(price.Round(MoneyPlaces)) {
		return ErrBasePriceInvalid
	}
	return nil
}

// ValidateMarkup проверяет процент наценки: неотрицательный, не больше
// maxMarkup и не точнее MarkupPlaces знаков, иначе цена продажи разойдётся
// с наценкой после сохранения.
func ValidateMarkup(markupPercent decimal.Decimal) error {
	if markupPercent.IsNegative() || markupPercent.GreaterThan(maxMarkup) {
		return ErrMarkupInvalid
	}
	if !markupPercent.Equal(markupPercent.Round(MarkupPlaces)) {
		return ErrMarkupInvalid
	}
	return nil
}

// LineSubtotal возвращает стоимость позиции: цена за единицу * количество.
func LineSubtotal(unitPrice decimal.Decimal, qty int64) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(qty))
}
