// Package catalog loads the remote product catalog and mirrors it into the
// local product store.
package catalog

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/shop-orders/internal/domain/product"
)

// EncodeProduct writes a single product object.
func EncodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("price")
	e.Num(jx.Num(p.Price.String()))
	e.FieldStart("in_stock")
	e.Bool(p.InStock)
	e.FieldStart("image")
	e.Str(p.Image)
	e.FieldStart("weight")
	e.Int(p.Weight)
	e.ObjEnd()
}

// EncodeProducts writes the catalog envelope {"products": [...]}.
func EncodeProducts(e *jx.Encoder, products []product.Product) {
	e.ObjStart()
	e.FieldStart("products")
	e.ArrStart()
	for _, p := range products {
		EncodeProduct(e, p)
	}
	e.ArrEnd()
	e.ObjEnd()
}

// DecodeProducts parses the catalog envelope. Unknown fields are skipped.
func DecodeProducts(data []byte) ([]product.Product, error) {
	products := []product.Product{}
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "products" {
			return d.Skip()
		}
		if d.Next() == jx.Null {
			return d.Null()
		}
		return d.Arr(func(d *jx.Decoder) error {
			p, err := decodeProduct(d)
			if err != nil {
				return errors.Wrapf(err, "product %d", len(products))
			}
			products = append(products, p)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	return products, nil
}

func decodeProduct(d *jx.Decoder) (product.Product, error) {
	var (
		p     product.Product
		hasID bool
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			hasID = true
			p.ID, err = d.Int64()
		case "name":
			p.Name, err = decodeText(d)
		case "description":
			p.Description, err = decodeText(d)
		case "price":
			p.Price, err = decodePrice(d)
		case "in_stock":
			p.InStock, err = d.Bool()
		case "image":
			p.Image, err = decodeText(d)
		case "weight":
			p.Weight, err = d.Int()
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return p, err
	}
	if !hasID {
		return p, errors.New("missing id")
	}
	if p.Price.IsNegative() || p.Weight < 0 {
		return p, errors.Errorf("product %d: negative price or weight", p.ID)
	}
	return p, nil
}

// decodeText reads a string, treating null as empty. NUL bytes are dropped
// since PostgreSQL text cannot store them.
func decodeText(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(s, "\x00", ""), nil
}

func decodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	n, err := d.Num()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(strings.Trim(n.String(), `"`))
}
