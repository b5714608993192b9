// Package prep holds the table cleaning and feature steps run before the
// fraud dataset is handed to modeling. Every step returns a new frame and
// leaves its input untouched.
package prep

import (
	"fmt"

	"github.com/malbeclabs/fraudprep/pkg/frame"
)

type Dataset struct {
	Fraud      *frame.Frame
	IPRanges   *frame.Frame
	CreditCard *frame.Frame
}

// LoadData reads the e-commerce transactions, the IP range reference table
// and the credit card transactions.
func LoadData(fraudPath, ipPath, creditPath string) (*Dataset, error) {
	fraud, err := frame.ReadCSVFile(fraudPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load fraud data: %w", err)
	}
	ip, err := frame.ReadCSVFile(ipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load ip ranges: %w", err)
	}
	credit, err := frame.ReadCSVFile(creditPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load credit card data: %w", err)
	}
	return &Dataset{Fraud: fraud, IPRanges: ip, CreditCard: credit}, nil
}
