package browser

import (
	"context"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// stealthScript runs before any page script in every frame of the tab.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });

const originalQuery = window.navigator.permissions && window.navigator.permissions.query;
if (originalQuery) {
  window.navigator.permissions.query = (parameters) => (
    parameters.name === 'notifications'
      ? Promise.resolve({ state: Notification.permission })
      : originalQuery(parameters)
  );
}

window.chrome = { runtime: {} };

const originalContentWindow = Object.getOwnPropertyDescriptor(HTMLIFrameElement.prototype, 'contentWindow');
Object.defineProperty(HTMLIFrameElement.prototype, 'contentWindow', {
  get: function () {
    const win = originalContentWindow.get.call(this);
    if (win) {
      Object.defineProperty(win.navigator, 'webdriver', { get: () => undefined });
    }
    return win;
  }
});
`

// applyProfile sets device metrics, user agent, timezone and locale on the
// tab and installs the stealth script.
func applyProfile(ctx context.Context, prof Profile) error {
	return chromedp.Run(ctx,
		chromedp.EmulateViewport(int64(prof.Viewport.Width), int64(prof.Viewport.Height)),
		emulation.SetUserAgentOverride(prof.UserAgent).WithAcceptLanguage(prof.acceptLanguage()),
		emulation.SetTimezoneOverride(prof.Timezone),
		emulation.SetLocaleOverride().WithLocale(prof.Locale),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
	)
}
