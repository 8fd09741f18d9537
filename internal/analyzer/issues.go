package analyzer

// Issue codes produced by the page rules
const (
	CodeFetchFailed        = "fetch_failed"
	CodeHTTPError          = "http_error"
	CodeRedirectLoop       = "redirect_loop"
	CodeLongRedirectChain  = "long_redirect_chain"
	CodeRedirectNoLocation = "redirect_missing_location"
	CodeRedirectStopped    = "redirect_not_followed"
	CodeMultipleRedirects  = "multiple_redirects"
	CodeMixedProtocol      = "mixed_protocol_redirect"
	CodeSlowResponse       = "slow_response"
	CodeNonHTML            = "non_html_content"
	CodeBodyTruncated      = "body_truncated"

	CodeMissingTitle  = "missing_title"
	CodeEmptyTitle    = "empty_title"
	CodeTitleTooShort = "title_too_short"
	CodeTitleTooLong  = "title_too_long"

	CodeMissingMetaDesc  = "missing_meta_description"
	CodeEmptyMetaDesc    = "empty_meta_description"
	CodeMetaDescTooShort = "meta_description_too_short"
	CodeMetaDescTooLong  = "meta_description_too_long"

	CodeMissingH1  = "missing_h1"
	CodeMultipleH1 = "multiple_h1"

	CodeMissingCanonical   = "missing_canonical"
	CodeEmptyCanonical     = "empty_canonical"
	CodeInvalidCanonical   = "invalid_canonical"
	CodeCanonicalElsewhere = "canonical_points_elsewhere"

	CodeNoIndex  = "noindex"
	CodeNoFollow = "nofollow"

	CodeImagesMissingAlt = "images_missing_alt"
	CodeLowWordCount     = "low_word_count"

	CodeNoHeadings        = "no_headings"
	CodeFirstHeadingNotH1 = "first_heading_not_h1"
	CodeHeadingMultipleH1 = "heading_multiple_h1"
	CodeHeadingSkip       = "heading_level_skipped"
	CodeHeadingEmpty      = "empty_heading"
	CodeHeadingTooLong    = "heading_too_long"

	CodeHreflangInvalidCode = "hreflang_invalid_code"
	CodeHreflangInvalidURL  = "hreflang_invalid_url"
	CodeHreflangDuplicate   = "hreflang_duplicate_code"
	CodeHreflangNoXDefault  = "hreflang_missing_x_default"

	CodeJSONLDInvalid     = "jsonld_invalid"
	CodeJSONLDMissingProp = "jsonld_missing_property"

	CodeLargeHTML     = "large_html"
	CodeNotCompressed = "not_compressed"

	CodePanic = "analysis_panic"
)
