// Package install detects user script installations in top-level
// navigations and hands them to the confirmation page.
//
// A GET of a .user.js URL that passes the hosting-site policy is stopped
// (cancelled, or sent to a no-op URL where the browser cannot cancel) and
// fetched out of band. Content with a metadata block gets a confirmation
// record and the confirm page; anything else is marked bypassed for a few
// seconds and the tab is sent back to the original URL.
//
//	r := install.New(install.Deps{
//		Config:   install.ConfigFrom(cfg),
//		Cache:    store,
//		Fetcher:  fetcher,
//		Tabs:     manager,
//		Commands: reg,
//	}, install.WithLogger(logger.Named("install")))
//	defer r.Attach(manager)()
package install
