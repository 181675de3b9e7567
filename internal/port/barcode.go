package port

import "context"

// BarcodeDecoder turns a captured barcode image into a SKU. Decoding is
// an external capability; the engine only resolves the returned SKU
// against the catalog.
type BarcodeDecoder interface {
	Decode(ctx context.Context, image []byte) (string, error)
}
