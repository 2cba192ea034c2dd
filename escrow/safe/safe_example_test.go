package safe_test

import (
	"fmt"

	"github.com/LerianStudio/lib-escrow/escrow/safe"
	"github.com/shopspring/decimal"
)

func ExamplePercentOf() {
	share, err := safe.PercentOf(decimal.NewFromInt(1001), decimal.NewFromInt(25))
	if err != nil {
		fmt.Println(err)

		return
	}

	fmt.Println(share)
	// Output:
	// 250
}
