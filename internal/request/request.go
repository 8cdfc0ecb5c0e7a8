package request

import (
	"math/rand/v2"
	"net/http"
)

// Kind tells the crawler what a fetched page is expected to be.
type Kind int

const (
	KindCategory Kind = iota
	KindProduct
)

func (k Kind) String() string {
	switch k {
	case KindCategory:
		return "category"
	case KindProduct:
		return "product"
	default:
		return "unknown"
	}
}

// Descriptor is an outgoing request before it reaches the fetcher.
type Descriptor struct {
	URL     string
	Kind    Kind
	Headers http.Header
	Cookies []*http.Cookie
	Proxy   string
}

// Clone returns a deep copy so decorators never share headers or cookies
// with the caller.
func (d Descriptor) Clone() Descriptor {
	out := d
	if d.Headers != nil {
		out.Headers = d.Headers.Clone()
	}
	if d.Cookies != nil {
		out.Cookies = make([]*http.Cookie, len(d.Cookies))
		for i, c := range d.Cookies {
			cp := *c
			out.Cookies[i] = &cp
		}
	}
	return out
}

// Cookie returns the value of the named cookie, if attached.
func (d Descriptor) Cookie(name string) (string, bool) {
	for _, c := range d.Cookies {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// Region pins catalog and pricing to one city.
type Region struct {
	CookieName string
	Value      string
}

// DefaultRegion is the Moscow region id used by alkoteka.com.
func DefaultRegion() Region {
	return Region{CookieName: "current_city_id", Value: "2"}
}

// Augmenter attaches the region cookie and a proxy to every request. Both
// the region and the proxy pool are fixed for the lifetime of a crawl.
type Augmenter struct {
	region  Region
	proxies []string
	pick    func(n int) int
}

type Option func(*Augmenter)

// WithPicker replaces the uniform random proxy choice.
func WithPicker(pick func(n int) int) Option {
	return func(a *Augmenter) {
		a.pick = pick
	}
}

func NewAugmenter(region Region, proxies []string, opts ...Option) *Augmenter {
	a := &Augmenter{
		region:  region,
		proxies: append([]string(nil), proxies...),
		pick:    rand.IntN,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Augment returns a decorated copy of d. An existing region cookie is
// replaced, never duplicated. With an empty pool the proxy slot is cleared.
func (a *Augmenter) Augment(d Descriptor) Descriptor {
	out := d.Clone()

	cookies := make([]*http.Cookie, 0, len(out.Cookies)+1)
	for _, c := range out.Cookies {
		if c.Name != a.region.CookieName {
			cookies = append(cookies, c)
		}
	}
	out.Cookies = append(cookies, &http.Cookie{Name: a.region.CookieName, Value: a.region.Value})

	out.Proxy = ""
	if len(a.proxies) > 0 {
		out.Proxy = a.proxies[a.pick(len(a.proxies))]
	}
	return out
}

func (a *Augmenter) Region() Region {
	return a.region
}

func (a *Augmenter) ProxyCount() int {
	return len(a.proxies)
}
