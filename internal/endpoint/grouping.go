package endpoint

import (
	"sort"

	"github.com/google/uuid"
)

// LinkedEventType is one event type linked to an endpoint, flattened with
// its owning application and bundle for display purposes.
type LinkedEventType struct {
	ID                     uuid.UUID
	Name                   string
	DisplayName            string
	ApplicationID          uuid.UUID
	ApplicationDisplayName string
	BundleID               uuid.UUID
	BundleDisplayName      string
	RestrictToRecipients   bool
}

// BundleGroup is the display grouping of an endpoint's linked event types:
// bundle, then application, then event type, each sorted by display name.
type BundleGroup struct {
	ID           uuid.UUID
	DisplayName  string
	Applications []ApplicationGroup
}

type ApplicationGroup struct {
	ID          uuid.UUID
	DisplayName string
	EventTypes  []EventTypeRef
}

type EventTypeRef struct {
	ID          uuid.UUID
	Name        string
	DisplayName string
}

// GroupEventTypes assembles the display grouping. The output ordering
// depends only on display names, never on the input order.
func GroupEventTypes(links []LinkedEventType) []BundleGroup {
	type appKey struct {
		bundleID uuid.UUID
		appID    uuid.UUID
	}

	bundlesByID := make(map[uuid.UUID]*BundleGroup)
	appsByKey := make(map[appKey]*ApplicationGroup)

	for _, link := range links {
		bundle, ok := bundlesByID[link.BundleID]
		if !ok {
			bundle = &BundleGroup{ID: link.BundleID, DisplayName: link.BundleDisplayName}
			bundlesByID[link.BundleID] = bundle
		}

		key := appKey{bundleID: link.BundleID, appID: link.ApplicationID}
		app, ok := appsByKey[key]
		if !ok {
			app = &ApplicationGroup{ID: link.ApplicationID, DisplayName: link.ApplicationDisplayName}
			appsByKey[key] = app
		}
		app.EventTypes = append(app.EventTypes, EventTypeRef{
			ID:          link.ID,
			Name:        link.Name,
			DisplayName: link.DisplayName,
		})
	}

	appsByBundle := make(map[uuid.UUID][]*ApplicationGroup)
	for key, app := range appsByKey {
		sort.Slice(app.EventTypes, func(i, j int) bool {
			return app.EventTypes[i].DisplayName < app.EventTypes[j].DisplayName
		})
		appsByBundle[key.bundleID] = append(appsByBundle[key.bundleID], app)
	}

	out := make([]BundleGroup, 0, len(bundlesByID))
	for bundleID, bundle := range bundlesByID {
		apps := appsByBundle[bundleID]
		sort.Slice(apps, func(i, j int) bool {
			return apps[i].DisplayName < apps[j].DisplayName
		})
		bundle.Applications = make([]ApplicationGroup, 0, len(apps))
		for _, app := range apps {
			bundle.Applications = append(bundle.Applications, *app)
		}
		out = append(out, *bundle)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DisplayName < out[j].DisplayName
	})
	return out
}
