//nolint:dupl
package db

import (
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
)

func init() {
	meddler.Register("address", AddressMeddler{})
}

// AddressMeddler maps common.Address columns to their hex string form.
// NULL columns map to the zero address, or nil for pointer fields.
type AddressMeddler struct{}

func (a AddressMeddler) PreRead(fieldAddr interface{}) (scanTarget interface{}, err error) {
	return new(sql.NullString), nil
}

func (a AddressMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return fmt.Errorf("expected *sql.NullString, got %T", scanTarget)
	}

	switch ptr := fieldAddr.(type) {
	case **common.Address:
		if !ns.Valid {
			*ptr = nil
			return nil
		}
		address := common.HexToAddress(ns.String)
		*ptr = &address
		return nil
	case *common.Address:
		if !ns.Valid {
			*ptr = common.Address{}
			return nil
		}
		*ptr = common.HexToAddress(ns.String)
		return nil
	default:
		return fmt.Errorf("expected *common.Address or **common.Address, got %T", fieldAddr)
	}
}

func (a AddressMeddler) PreWrite(field interface{}) (saveValue interface{}, err error) {
	switch v := field.(type) {
	case *common.Address:
		if v == nil {
			return nil, nil
		}
		return v.Hex(), nil
	case common.Address:
		return v.Hex(), nil
	default:
		return nil, fmt.Errorf("expected common.Address or *common.Address, got %T", field)
	}
}
