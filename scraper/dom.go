package scraper

import "livewatcher.com/models"

// domProductsScript collects every element matching any of the selectors.
// Elements without a title are skipped; price and image default to "".
const domProductsScript = `(selectors) => {
  const products = [];
  for (const selector of selectors) {
    let elements;
    try {
      elements = document.querySelectorAll(selector);
    } catch (e) {
      continue;
    }
    for (const element of elements) {
      try {
        const titleEl = element.querySelector('[class*="title"], [class*="name"]');
        const title = titleEl && titleEl.textContent ? titleEl.textContent.trim() : '';
        if (!title) {
          continue;
        }
        const priceEl = element.querySelector('[class*="price"]');
        const img = element.querySelector('img');
        products.push({
          title: title,
          price: priceEl && priceEl.textContent ? priceEl.textContent.trim() : '',
          image_url: img && img.src ? img.src : ''
        });
      } catch (e) {}
    }
  }
  return products;
}`

func toRawProducts(v any) []models.RawProduct {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	products := make([]models.RawProduct, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			products = append(products, models.RawProduct(m))
		}
	}
	return products
}
