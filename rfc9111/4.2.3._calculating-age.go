package rfc9111

import (
	"net/http"
	"time"
)

// §  4.2.3. Calculating Age
// §
// §  age_value
// §      The term "age_value" denotes the value of the Age header field (Section
// §      5.1), in a form appropriate for arithmetic operation; or 0, if not
// §      available.
func age_value(header http.Header) time.Duration {
	age, _ := getAge(header)
	return age
}

// §  date_value
// §      The term "date_value" denotes the value of the Date header field, in a
// §      form appropriate for arithmetic operations.
func date_value(header http.Header, responseTime time.Time) time.Time {
	date, err := HttpDate(header.Get("Date"))
	if err != nil {
		return responseTime
	}
	return date
}

// §    apparent_age = max(0, response_time - date_value);
// §
// §    response_delay = response_time - request_time;
// §    corrected_age_value = age_value + response_delay;
// §
// §    corrected_initial_age = max(apparent_age, corrected_age_value);
// §
// §    resident_time = now - response_time;
// §    current_age = corrected_initial_age + resident_time;
func current_age(header http.Header, requestTime, responseTime, now time.Time) time.Duration {
	apparent_age := maxDuration(0, responseTime.Sub(date_value(header, responseTime)))
	response_delay := maxDuration(0, responseTime.Sub(requestTime))
	corrected_age_value := age_value(header) + response_delay
	corrected_initial_age := maxDuration(apparent_age, corrected_age_value)
	resident_time := maxDuration(0, now.Sub(responseTime))
	return corrected_initial_age + resident_time
}

// CurrentAge returns the age of a stored response at the given time.
func CurrentAge(header http.Header, requestTime, responseTime, now time.Time) time.Duration {
	return current_age(header, requestTime, responseTime, now)
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
