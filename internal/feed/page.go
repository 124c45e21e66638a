package feed

// Element is a node of the rendered feed
type Element interface {
	FindAll(selector string) ([]Element, error)
	Text() (string, error)
	Attribute(name string) (string, error)
	ScrollIntoView() error
}

// Page is a logged-in feed that can be queried and scrolled
type Page interface {
	FindAll(selector string) ([]Element, error)
	ScrollToBottom() error
	Height() (int64, error)
}

// Feed DOM selectors
const (
	PostSelector         = ".feed-shared-update-v2"
	TextSelector         = ".break-words span[dir='ltr']"
	PermalinkSelector    = ".feed-shared-actor__sub-description a"
	ReactionsSelector    = "button[data-reaction-details]"
	CountsItemSelector   = ".social-details-social-counts__item"
	RelativeTimeSelector = "span.relative-time"
	AnchorSelector       = "a"
)

// URLSelectors are tried in order when looking for the post permalink
var URLSelectors = []string{
	"a[data-test-app-aware-link]",
	".feed-shared-actor__container a",
	".feed-shared-update-v2__content a",
	".feed-shared-actor__meta a",
}

const linkedInOrigin = "https://www.linkedin.com"
