package cache

import (
	"fmt"
	"strings"
	"time"
)

// 保留的缓存命名空间，调用方必须一致使用。
const (
	CategoryCacheName     = "plantCategoriesCache"
	MainCacheName         = "plantDataCache"
	DetailCacheName       = "plantDetailsCache"
	CheckoutCacheName     = "checkoutCache"
	ShoppingCartCacheName = "cart"
	UserCacheName         = "user"
	SearchCacheName       = "searchDataCache"

	// ImageCacheName/ImageStoreName 是图片后端的数据库名与对象仓库名。
	ImageCacheName = "images"
	ImageStoreName = "imageStore"
)

// TTL 默认值：普通内容 1 小时，用户记录（携带 token）12 小时。
const (
	DefaultTTL = time.Hour
	UserTTL    = 12 * time.Hour
)

// CategoryKey 返回某个分类的缓存键，例如 plantCategoriesCache_3。
func CategoryKey(category any) string {
	return scopedKey(CategoryCacheName, category)
}

// DetailKey 返回单株植物详情的缓存键，例如 plantDetailsCache_39。
func DetailKey(id any) string {
	return scopedKey(DetailCacheName, id)
}

// SearchKey 返回某个搜索词的缓存键。
func SearchKey(term string) string {
	return scopedKey(SearchCacheName, strings.TrimSpace(term))
}

func scopedKey(name string, suffix any) string {
	return fmt.Sprintf("%s_%v", name, suffix)
}
