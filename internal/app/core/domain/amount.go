package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// 金額精度，與 mysql 的 decimal(20,4) 欄位一致
const (
	// AmountScale 小數位數上限
	AmountScale = 4
	// AmountIntegerDigits 整數位數上限
	AmountIntegerDigits = 16
)

// maxInputScale 超過此小數位數直接拒絕，不做任何運算
// (decimal 對極端 exponent 做 rescale 的成本與 exponent 成正比)
const maxInputScale = 32

// checkAmountRange 檢查金額可被儲存端精確表示
// 只看 exponent 與係數位數，不對極端值做 rescale
func checkAmountRange(d decimal.Decimal) error {
	exp := int(d.Exponent())
	if exp < -maxInputScale {
		return fmt.Errorf("%w: %w", ErrValidation, ErrAmountOutOfRange)
	}
	if exp < -AmountScale && !d.Equal(d.Truncate(AmountScale)) {
		return fmt.Errorf("%w: %w", ErrValidation, ErrAmountOutOfRange)
	}
	if exp > AmountIntegerDigits {
		return fmt.Errorf("%w: %w", ErrValidation, ErrAmountOutOfRange)
	}
	coef := d.Coefficient()
	if coef.Sign() == 0 {
		return nil
	}
	digits := len(coef.Abs(coef).String())
	if digits+exp > AmountIntegerDigits {
		return fmt.Errorf("%w: %w", ErrValidation, ErrAmountOutOfRange)
	}
	return nil
}

// ValidateAmount 交易金額必須為正數且在可儲存的範圍內
func ValidateAmount(d decimal.Decimal) error {
	if err := checkAmountRange(d); err != nil {
		return err
	}
	if !d.IsPositive() {
		return fmt.Errorf("%w: %w", ErrValidation, ErrAmountMustBePositive)
	}
	return nil
}
