package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dgellow/restaurant-reviews/internal/auth"
	"github.com/dgellow/restaurant-reviews/internal/log"
	"github.com/dgellow/restaurant-reviews/internal/session"
	"github.com/dgellow/restaurant-reviews/internal/storage"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// restaurantForm is the body of POST /add
type restaurantForm struct {
	Name          string `validate:"required,max=50"`
	StreetAddress string `validate:"required,max=50"`
	Description   string `validate:"required,max=250"`
}

// reviewForm is the body of POST /review/{id}
type reviewForm struct {
	UserName   string `validate:"required,max=50"`
	Rating     int    `validate:"min=1,max=5"`
	ReviewText string `validate:"required,max=500"`
}

// SiteHandlers serves the restaurant and review pages
type SiteHandlers struct {
	storage    storage.Storage
	flow       *auth.Flow
	renderer   *Renderer
	production bool
}

// NewSiteHandlers creates the page handlers
func NewSiteHandlers(s storage.Storage, flow *auth.Flow, renderer *Renderer, production bool) *SiteHandlers {
	return &SiteHandlers{
		storage:    s,
		flow:       flow,
		renderer:   renderer,
		production: production,
	}
}

// basePage fills the fields the layout needs.
func (h *SiteHandlers) basePage(r *http.Request) PageData {
	data := PageData{
		AuthEnabled: h.flow.Enabled(),
		Production:  h.production,
	}
	if s, ok := session.FromContext(r.Context()); ok {
		if user, ok := h.flow.CurrentUser(s); ok {
			data.CurrentUser = user
		}
	}
	return data
}

func (h *SiteHandlers) renderError(w http.ResponseWriter, r *http.Request, status int, title, message string) {
	data := h.basePage(r)
	data.Title = title
	data.Message = message
	h.renderer.Render(w, status, pageError, data)
}

func (h *SiteHandlers) internalError(w http.ResponseWriter, r *http.Request, what string, err error) {
	log.LogErrorWithFields("site", what, map[string]any{
		"path":  r.URL.Path,
		"error": err.Error(),
	})
	h.renderError(w, r, http.StatusInternalServerError, "Something went wrong", "Please try again later.")
}

// Index lists every restaurant with its rating.
func (h *SiteHandlers) Index(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.storage.ListRestaurantSummaries(r.Context())
	if err != nil {
		h.internalError(w, r, "Failed to list restaurants", err)
		return
	}

	data := h.basePage(r)
	data.Restaurants = summaries
	h.renderer.Render(w, http.StatusOK, pageIndex, data)
}

// CreateForm shows the add-restaurant form.
func (h *SiteHandlers) CreateForm(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, http.StatusOK, pageCreate, h.basePage(r))
}

// AddRestaurant stores a restaurant and redirects to its page.
func (h *SiteHandlers) AddRestaurant(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Invalid form", "The form could not be read.")
		return
	}
	form := restaurantForm{
		Name:          strings.TrimSpace(r.PostForm.Get("restaurant_name")),
		StreetAddress: strings.TrimSpace(r.PostForm.Get("street_address")),
		Description:   strings.TrimSpace(r.PostForm.Get("description")),
	}
	if err := validate.Struct(form); err != nil {
		data := h.basePage(r)
		data.FormError = formErrorMessage(err)
		h.renderer.Render(w, http.StatusBadRequest, pageCreate, data)
		return
	}

	restaurant := &storage.Restaurant{
		Name:          form.Name,
		StreetAddress: form.StreetAddress,
		Description:   form.Description,
	}
	if err := h.storage.CreateRestaurant(r.Context(), restaurant); err != nil {
		h.internalError(w, r, "Failed to create restaurant", err)
		return
	}

	log.LogInfoWithFields("site", "Restaurant created", map[string]any{
		"restaurant_id": restaurant.ID,
		"name":          restaurant.Name,
	})
	http.Redirect(w, r, detailsPath(restaurant.ID), http.StatusSeeOther)
}

// Details shows one restaurant with its reviews.
func (h *SiteHandlers) Details(w http.ResponseWriter, r *http.Request) {
	id, ok := restaurantID(r)
	if !ok {
		h.renderError(w, r, http.StatusNotFound, "Not found", "That restaurant does not exist.")
		return
	}
	h.renderDetails(w, r, id, http.StatusOK, "")
}

func (h *SiteHandlers) renderDetails(w http.ResponseWriter, r *http.Request, id int64, status int, formError string) {
	restaurant, err := h.storage.GetRestaurant(r.Context(), id)
	if errors.Is(err, storage.ErrRestaurantNotFound) {
		h.renderError(w, r, http.StatusNotFound, "Not found", "That restaurant does not exist.")
		return
	}
	if err != nil {
		h.internalError(w, r, "Failed to load restaurant", err)
		return
	}

	reviews, err := h.storage.ListReviews(r.Context(), id)
	if err != nil {
		h.internalError(w, r, "Failed to list reviews", err)
		return
	}

	data := h.basePage(r)
	data.Restaurant = storage.Summarize([]storage.Restaurant{*restaurant}, reviews)[0]
	data.Reviews = reviews
	data.Ratings = []int{1, 2, 3, 4, 5}
	data.FormError = formError
	h.renderer.Render(w, status, pageDetails, data)
}

// AddReview stores a review and redirects back to the restaurant.
func (h *SiteHandlers) AddReview(w http.ResponseWriter, r *http.Request) {
	id, ok := restaurantID(r)
	if !ok {
		h.renderError(w, r, http.StatusNotFound, "Not found", "That restaurant does not exist.")
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Invalid form", "The form could not be read.")
		return
	}

	form := reviewForm{
		UserName:   strings.TrimSpace(r.PostForm.Get("user_name")),
		ReviewText: strings.TrimSpace(r.PostForm.Get("review_text")),
	}
	rating, err := strconv.Atoi(strings.TrimSpace(r.PostForm.Get("rating")))
	if err != nil {
		h.renderDetails(w, r, id, http.StatusBadRequest, "Rating must be a number from 1 to 5.")
		return
	}
	form.Rating = rating
	if err := validate.Struct(form); err != nil {
		h.renderDetails(w, r, id, http.StatusBadRequest, formErrorMessage(err))
		return
	}

	review := &storage.Review{
		RestaurantID: id,
		UserName:     form.UserName,
		Rating:       form.Rating,
		ReviewText:   form.ReviewText,
	}
	err = h.storage.CreateReview(r.Context(), review)
	if errors.Is(err, storage.ErrRestaurantNotFound) {
		h.renderError(w, r, http.StatusNotFound, "Not found", "That restaurant does not exist.")
		return
	}
	if err != nil {
		h.internalError(w, r, "Failed to create review", err)
		return
	}

	log.LogInfoWithFields("site", "Review created", map[string]any{
		"restaurant_id": id,
		"review_id":     review.ID,
		"rating":        review.Rating,
	})
	http.Redirect(w, r, detailsPath(id), http.StatusSeeOther)
}

func restaurantID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func detailsPath(id int64) string {
	return fmt.Sprintf("/details/%d", id)
}

var fieldLabels = map[string]string{
	"Name":          "Name",
	"StreetAddress": "Street address",
	"Description":   "Description",
	"UserName":      "Your name",
	"Rating":        "Rating",
	"ReviewText":    "Review",
}

// formErrorMessage turns validator output into one line for the page.
func formErrorMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "The form is invalid."
	}
	fe := verrs[0]
	label := fieldLabels[fe.Field()]
	if label == "" {
		label = fe.Field()
	}
	switch {
	case fe.Field() == "Rating":
		return "Rating must be a number from 1 to 5."
	case fe.Tag() == "required":
		return label + " is required."
	case fe.Tag() == "max":
		return fmt.Sprintf("%s must be at most %s characters.", label, fe.Param())
	}
	return label + " is invalid."
}
