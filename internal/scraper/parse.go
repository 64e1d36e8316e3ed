package scraper

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/tonimelisma/pbi-refresh-monitor/pkg/powerbi"
)

// folderType is the item type of workspace folders, which have no refresh
// status of their own.
const folderType = "Pasta"

// Workspace page selectors. A class list matches an element carrying any
// one of the classes. Warning lookups leave out the generic glyphicon class,
// which every refresh glyph carries.
const (
	selectorViewport       = "cdk-virtual-scroll-viewport"
	selectorWorkspaceName  = "h1.workspace-name, h1.tri-text-overflow-ellipsis, h1.tri-subtitle1"
	selectorContentWrapper = "cdk-virtual-scroll-viewport#artifactContentView div.cdk-virtual-scroll-content-wrapper"
	selectorRow            = "div[role='row']"
	selectorItemName       = "span.name-container a.name, span.name-container a.trimmedTextWithEllipsis, span.name-container a.ng-star-inserted"
	selectorItemType       = "span[data-testid='fluentListCell.type']"
	selectorLastRefresh    = "span[data-testid='fluentListCell.lastRefresh']"
	selectorNextRefresh    = "span[data-testid='fluentListCell.nextRefresh']"
	selectorWarningIcon    = "i.warning, i.pbi-glyph-warning, i.glyph-small"
	selectorDataflowIcons  = "span.dataflow-refresh-icons"
	selectorDataflowButton = "button.pbi-glyph-warning"
)

// ParseWorkspacePage extracts one record per visible row of a rendered
// workspace page, keyed by workspace name then item name. Folder rows are
// skipped and absent fields read as powerbi.UnknownValue. A page without
// the content list parses to an empty result.
func ParseWorkspacePage(html, runTimestamp string) (map[string]powerbi.WorkspaceRecords, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing workspace page: %w", err)
	}

	result := make(map[string]powerbi.WorkspaceRecords)

	workspace := textOrUnknown(doc.Find(selectorWorkspaceName))
	wrapper := doc.Find(selectorContentWrapper).First()
	if wrapper.Length() == 0 {
		return result, nil
	}

	records := make(powerbi.WorkspaceRecords)
	wrapper.Find(selectorRow).Each(func(_ int, row *goquery.Selection) {
		itemType := titleOrUnknown(row.Find(selectorItemType))
		if itemType == folderType {
			return
		}

		records.Add(powerbi.NewReportRecord(
			workspace,
			textOrUnknown(row.Find(selectorItemName)),
			itemType,
			titleOrUnknown(row.Find(selectorLastRefresh)),
			titleOrUnknown(row.Find(selectorNextRefresh)),
			runTimestamp,
			warningSource(row),
		))
	})

	if len(records) > 0 {
		result[workspace] = records
	}
	return result, nil
}

// warningSource looks for the failed-refresh marker: a warning glyph on the
// row, or a warning button inside the dataflow refresh icons.
func warningSource(row *goquery.Selection) powerbi.WarningSource {
	if row.Find(selectorWarningIcon).Length() > 0 {
		return powerbi.WarningIcon
	}
	if row.Find(selectorDataflowIcons).Find(selectorDataflowButton).Length() > 0 {
		return powerbi.WarningDataflowButton
	}
	return powerbi.WarningNone
}

func textOrUnknown(s *goquery.Selection) string {
	if s.Length() == 0 {
		return powerbi.UnknownValue
	}
	return strings.TrimSpace(s.First().Text())
}

func titleOrUnknown(s *goquery.Selection) string {
	title, ok := s.First().Attr("title")
	if !ok {
		return powerbi.UnknownValue
	}
	return title
}
