package builtin

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/scrape/util"
)

const (
	cardSelector    = "[data-id='job-card'], .job-card, [class*='JobCard'], article[class*='job']"
	titleSelector   = "a[data-id='job-title'], h2 a, h3 a, [class*='title'] a, a[class*='job-title']"
	locSelector     = "[data-id='job-location'], [class*='location'], span[class*='Location']"
	salarySelector  = "[data-id='salary'], [class*='salary'], [class*='compensation']"
	dateSelector    = "[class*='date'], time, [data-id='posted']"
	logoSelector    = "img[src*='logo'], img[class*='logo'], img[class*='company']"
)

// parseCards extracts listing cards from a rendered search page. Nested
// matches of the card selector are collapsed to the outermost card.
func parseCards(html, pageURL string, now time.Time) ([]domain.Job, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var jobs []domain.Job
	doc.Find(cardSelector).Each(func(_ int, card *goquery.Selection) {
		if card.ParentsFiltered(cardSelector).Length() > 0 {
			return
		}
		if j, ok := parseCard(card, pageURL, now); ok {
			jobs = append(jobs, j)
		}
	})
	return jobs, nil
}

func parseCard(card *goquery.Selection, pageURL string, now time.Time) (domain.Job, bool) {
	a := card.Find(titleSelector).First()
	title := util.CleanText(a.Text())
	href, _ := a.Attr("href")
	if title == "" || strings.TrimSpace(href) == "" {
		return domain.Job{}, false
	}

	company := firstOf(card, "[data-id='company-title']", "[class*='company-name']", "a[href*='/company/']", "[class*='company']")
	if company == "" {
		company = "Unknown"
	}

	loc := util.NormalizeLocation(firstText(card, locSelector))
	lt := util.ParseLocationType(loc)
	if lt == domain.LocationUnknown {
		badge := strings.ToLower(firstText(card, "[class*='remote'], [data-id*='remote']"))
		if strings.Contains(badge, "remote") {
			lt = domain.LocationRemote
		}
	}

	desc := firstText(card, "[class*='description'], p[class*='snippet']")
	if desc == "" {
		desc = title
	}

	j := domain.Job{
		URL:          util.CanonicalizeURL(util.Absolute(pageURL, href)),
		Title:        title,
		CompanyName:  company,
		Description:  desc,
		Source:       Name,
		Location:     loc,
		LocationType: lt,
		ScrapedAt:    now,
	}

	applySalary(&j, firstText(card, salarySelector))

	if d := card.Find(dateSelector).First(); d.Length() > 0 {
		j.PostedText = util.CleanText(d.Text())
		if dt, ok := d.Attr("datetime"); ok && len(dt) >= 10 {
			if t, err := time.Parse("2006-01-02", dt[:10]); err == nil {
				j.PostedDate = &t
			}
		}
		if j.PostedDate == nil {
			j.PostedDate = util.ParsePostedDate(j.PostedText, now)
		}
	}

	if src, ok := card.Find(logoSelector).First().Attr("src"); ok {
		j.CompanyLogo = util.Absolute(pageURL, src)
	}

	raw := map[string]any{}
	if size := companySize(firstText(card, "[class*='company-size'], [data-id='company-size']")); size != "" {
		raw["company_size"] = size
	}
	if ind := firstText(card, "[class*='industry'], [data-id='industry']"); ind != "" {
		raw["industry"] = ind
	}
	if len(raw) > 0 {
		j.RawData = raw
	}
	return j, true
}

// parseDetails reads a rendered posting page.
func parseDetails(html, jobURL string, now time.Time) (*domain.Job, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	page := doc.Selection

	j := &domain.Job{
		URL:         util.CanonicalizeURL(jobURL),
		Title:       firstText(page, "h1, [data-id='job-title'], [class*='job-title']"),
		CompanyName: firstText(page, "[data-id='company-name'], [class*='company-name'], a[href*='/company/'] > span"),
		Location:    util.NormalizeLocation(firstText(page, "[data-id='job-location'], [class*='job-location']")),
		Source:      Name,
		ScrapedAt:   now,
	}
	j.LocationType = util.ParseLocationType(j.Location)

	body := page.Find("[data-id='job-description'], [class*='job-description'], article").First()
	j.Description = util.BlockText(body)
	j.Requirements = util.ExtractRequirements(j.Description)

	applySalary(j, firstText(page, "[data-id='job-salary'], [class*='salary'], [class*='compensation']"))

	j.JobType = strings.ToLower(firstText(page, "[class*='job-type'], [data-id='job-type']"))
	j.ExperienceLevel = experienceLevel(firstText(page, "[class*='experience'], [data-id='experience']"))
	if src, ok := page.Find("img[class*='company-logo'], img[class*='logo']").First().Attr("src"); ok {
		j.CompanyLogo = util.Absolute(jobURL, src)
	}
	if posted := firstText(page, "[class*='posted'], time[class*='date']"); posted != "" {
		j.PostedText = posted
		j.PostedDate = util.ParsePostedDate(posted, now)
	}
	return j, nil
}

func firstText(sel *goquery.Selection, css string) string {
	return util.CleanText(sel.Find(css).First().Text())
}

// firstOf tries each selector in priority order rather than document order.
func firstOf(sel *goquery.Selection, css ...string) string {
	for _, c := range css {
		if t := firstText(sel, c); t != "" {
			return t
		}
	}
	return ""
}

func applySalary(j *domain.Job, text string) {
	if text == "" {
		return
	}
	sal := util.ParseSalary(text)
	j.SalaryText = text
	j.SalaryCurrency = sal.Currency
	if sal.Min != nil {
		j.SalaryMin = *sal.Min
	}
	if sal.Max != nil {
		j.SalaryMax = *sal.Max
	}
}

// companySize buckets a headcount range. Wider ranges are checked first since
// "1001-5000" contains "1-50".
func companySize(text string) string {
	t := strings.ToLower(strings.NewReplacer(" ", "", ",", "").Replace(text))
	switch {
	case t == "":
		return ""
	case strings.Contains(t, "1001-5000"):
		return "large"
	case strings.Contains(t, "5000"), strings.Contains(t, "5001"):
		return "enterprise"
	case strings.Contains(t, "201-500"), strings.Contains(t, "501-1000"):
		return "medium"
	case strings.Contains(t, "51-200"):
		return "small"
	case strings.Contains(t, "1-10"), strings.Contains(t, "11-50"), strings.Contains(t, "1-50"), strings.Contains(t, "startup"):
		return "startup"
	}
	return ""
}

func experienceLevel(text string) string {
	t := strings.ToLower(text)
	switch {
	case t == "":
		return ""
	case strings.Contains(t, "entry"), strings.Contains(t, "junior"), strings.Contains(t, "0-2"):
		return "entry"
	case strings.Contains(t, "mid"), strings.Contains(t, "3-5"), strings.Contains(t, "intermediate"):
		return "mid"
	case strings.Contains(t, "senior"), strings.Contains(t, "5+"), strings.Contains(t, "lead"):
		return "senior"
	}
	return ""
}
