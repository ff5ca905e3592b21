package database

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"livewatcher.com/models"
)

var (
	titleKeys = []string{"title", "name", "product_name", "productName"}
	priceKeys = []string{"price", "price_str", "min_price", "priceText"}
	imageKeys = []string{"image_url", "cover", "img", "image"}
	idKeys    = []string{"product_id", "promotion_id", "id"}
	linkKeys  = []string{"link", "url", "detail_url"}
)

// Normalize maps a raw product onto the stored shape. It fails when the raw
// object carries neither a product id nor a title.
func Normalize(raw models.RawProduct, room models.RoomContext, source models.Source) (models.Product, bool) {
	p := models.Product{
		ProductID: firstString(raw, idKeys),
		Title:     cleanText(firstString(raw, titleKeys)),
		Price:     cleanPrice(firstString(raw, priceKeys)),
		ImageURL:  firstString(raw, imageKeys),
		Link:      firstString(raw, linkKeys),
		RoomID:    room.RoomID,
		RoomName:  room.RoomName,
		RoomURL:   room.RoomURL,
		Source:    string(source),
		CreatedAt: time.Now().UTC(),
	}

	switch {
	case p.ProductID != "":
		p.Key = contentKey("id:" + p.ProductID)
	case p.Title != "":
		p.Key = contentKey("title:" + strings.ToLower(p.Title))
	default:
		return models.Product{}, false
	}
	return p, true
}

func contentKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func firstString(raw models.RawProduct, keys []string) string {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		if s := stringValue(v); s != "" {
			return s
		}
	}
	return ""
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case map[string]any:
		// image objects: {"url_list": [...]} or {"url": "..."}
		if list, ok := t["url_list"].([]any); ok && len(list) > 0 {
			return stringValue(list[0])
		}
		return stringValue(t["url"])
	}
	return ""
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func cleanPrice(price string) string {
	price = strings.ReplaceAll(price, "\u00a0", "")
	price = strings.ReplaceAll(price, " ", "")
	return price
}
