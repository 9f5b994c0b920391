package engine

import (
	"math/rand"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/stealth"
)

// userAgents are recent desktop Chrome identities; each browser session
// picks one at random so repeated runs don't share an exact fingerprint.
var userAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
}

func randomUA() string {
	return userAgents[rand.Intn(len(userAgents))]
}

// propertyOverride is one DOM-level fingerprint fix, applied before any
// navigation happens on the page.
type propertyOverride struct {
	name string
	js   string
}

// fingerprintOverrides is the declarative evasion set layered on top of
// stealth.JS. Each entry patches one automation telltale the registry's
// challenge script is known to inspect.
var fingerprintOverrides = []propertyOverride{
	{
		name: "navigator.webdriver",
		js: `Object.defineProperty(navigator, 'webdriver', {
			get: () => undefined
		});`,
	},
	{
		name: "navigator.plugins",
		js: `Object.defineProperty(navigator, 'plugins', {
			get: () => [
				{ name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer', description: 'Portable Document Format' },
				{ name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai', description: '' },
				{ name: 'Native Client', filename: 'internal-nacl-plugin', description: '' }
			]
		});`,
	},
	{
		name: "navigator.languages",
		js: `Object.defineProperty(navigator, 'languages', {
			get: () => ['en-US', 'en']
		});`,
	},
	{
		name: "window.chrome",
		js: `window.chrome = window.chrome || {
			runtime: {},
			loadTimes: function() {},
			csi: function() {},
			app: {}
		};`,
	},
	{
		name: "permissions.query",
		js: `const origQuery = window.navigator.permissions.query;
		window.navigator.permissions.query = (parameters) => (
			parameters.name === 'notifications'
				? Promise.resolve({ state: Notification.permission })
				: origQuery(parameters)
		);`,
	},
	{
		name: "webgl.vendor",
		js: `const getParameter = WebGLRenderingContext.prototype.getParameter;
		WebGLRenderingContext.prototype.getParameter = function(parameter) {
			if (parameter === 37445) return 'Intel Inc.';
			if (parameter === 37446) return 'Intel Iris OpenGL Engine';
			return getParameter.apply(this, arguments);
		};`,
	},
}

// evasionScript joins the override set into one init script.
func evasionScript() string {
	var b strings.Builder
	for _, o := range fingerprintOverrides {
		b.WriteString(o.js)
		b.WriteByte('\n')
	}
	return b.String()
}

// applyEvasions installs stealth.JS plus the fingerprint override set on a
// page. Must run before the first navigation: init scripts only take effect
// for navigations that happen after installation.
func applyEvasions(page *rod.Page) error {
	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		return err
	}
	if _, err := page.EvalOnNewDocument(evasionScript()); err != nil {
		return err
	}
	return nil
}
