package knowledge

import (
	"context"

	"aquabot/internal/domain"
)

// seedEntries are the starter Q&A pairs loaded by Seed for a fresh
// installation.
var seedEntries = []domain.KnowledgeEntry{
	{
		Question: "كيف أطلب مياه من التطبيق؟",
		Answer:   "تقدر تطلب مياه من خلال التطبيق: اختر مدينتك، ثم العلامة التجارية اللي تبغاها، وبعدين أضف المنتجات للسلة وأكمل الطلب.",
		Category: "orders", Language: "ar", Priority: 2,
	},
	{
		Question: "كم يستغرق التوصيل؟",
		Answer:   "التوصيل عادة يستغرق من 24 إلى 48 ساعة حسب مدينتك والعلامة التجارية المختارة.",
		Category: "delivery", Language: "ar", Priority: 2,
	},
	{
		Question: "ما هي طرق الدفع المتاحة؟",
		Answer:   "نوفر الدفع عن طريق البطاقات الائتمانية ومدى وApple Pay، وبعض العلامات التجارية توفر الدفع عند الاستلام.",
		Category: "payment", Language: "ar", Priority: 1,
	},
	{
		Question: "هل التوصيل مجاني؟",
		Answer:   "التوصيل مجاني لمعظم العلامات التجارية، وبعضها قد يضيف رسوم توصيل بسيطة تظهر لك قبل إتمام الطلب.",
		Category: "delivery", Language: "ar", Priority: 1,
	},
	{
		Question: "كيف ألغي طلبي؟",
		Answer:   "تقدر تلغي طلبك من صفحة الطلبات في التطبيق قبل خروجه للتوصيل، أو تواصل معنا وبنساعدك.",
		Category: "orders", Language: "ar", Priority: 1,
	},
	{
		Question: "ما هي المدن التي تغطونها؟",
		Answer:   "نغطي معظم مدن المملكة، وتقدر تتأكد من توفر الخدمة في مدينتك من داخل التطبيق عند اختيار المدينة.",
		Category: "coverage", Language: "ar", Priority: 1,
	},
	{
		Question: "How do I order water?",
		Answer:   "You can order through the app: pick your city, choose a brand, add products to the cart and complete checkout.",
		Category: "orders", Language: "en", Priority: 1,
	},
	{
		Question: "How long does delivery take?",
		Answer:   "Delivery usually takes 24 to 48 hours depending on your city and the selected brand.",
		Category: "delivery", Language: "en", Priority: 1,
	},
}

// Seed loads the starter entries, skipping any that duplicate existing
// questions. It is safe to call repeatedly.
func (e *Engine) Seed(ctx context.Context) (added, skipped int, err error) {
	entries := make([]domain.KnowledgeEntry, len(seedEntries))
	copy(entries, seedEntries)
	for i := range entries {
		entries[i].Source = "seed"
	}
	return e.AddBulk(ctx, entries)
}
