package database

import (
	"fmt"

	"check-deposit-go/internal/models"
	"check-deposit-go/internal/store"
)

// sealExtracted returns a copy of x with the MICR fields and the raw OCR text
// encrypted. The original is not modified.
func (s *Service) sealExtracted(x *models.ExtractedCheckData) (*models.ExtractedCheckData, error) {
	if x == nil {
		return nil, nil
	}
	cp := *x
	var err error
	if cp.RoutingNumber, err = s.sealer.SealPtr(x.RoutingNumber); err != nil {
		return nil, fmt.Errorf("failed to seal routing number: %w", err)
	}
	if cp.AccountNumber, err = s.sealer.SealPtr(x.AccountNumber); err != nil {
		return nil, fmt.Errorf("failed to seal account number: %w", err)
	}
	if cp.RawText, err = s.sealer.Seal(x.RawText); err != nil {
		return nil, fmt.Errorf("failed to seal raw text: %w", err)
	}
	return &cp, nil
}

func (s *Service) openExtracted(x *models.ExtractedCheckData) error {
	var err error
	if x.RoutingNumber, err = s.sealer.OpenPtr(x.RoutingNumber); err != nil {
		return fmt.Errorf("failed to open routing number: %w", err)
	}
	if x.AccountNumber, err = s.sealer.OpenPtr(x.AccountNumber); err != nil {
		return fmt.Errorf("failed to open account number: %w", err)
	}
	if x.RawText, err = s.sealer.Open(x.RawText); err != nil {
		return fmt.Errorf("failed to open raw text: %w", err)
	}
	return nil
}

// duplicateFingerprint is the stored form of a complete duplicate key, or "".
func (s *Service) duplicateFingerprint(key store.DuplicateKey) string {
	if !key.Complete() {
		return ""
	}
	return s.sealer.Fingerprint(key.String())
}
