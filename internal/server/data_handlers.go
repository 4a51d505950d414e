package server

import (
	"github.com/gofiber/fiber/v2"

	"github.com/robby3000/luxicle/internal/apperr"
	"github.com/robby3000/luxicle/internal/models"
	"github.com/robby3000/luxicle/internal/storage"
)

func (s *Server) ListCategories(c *fiber.Ctx) error {
	categories, err := s.data.ListCategories(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(categories)
}

// ListTags handles GET /api/tags; ?popular=N returns the N most used tags instead.
func (s *Server) ListTags(c *fiber.Ctx) error {
	ctx := c.UserContext()
	if n := c.QueryInt("popular", 0); n > 0 {
		tags, err := s.data.ListPopularTags(ctx, n)
		if err != nil {
			return err
		}
		return c.JSON(tags)
	}
	tags, err := s.data.ListTags(ctx)
	if err != nil {
		return err
	}
	return c.JSON(tags)
}

func (s *Server) ListChallenges(c *fiber.Ctx) error {
	var f models.ChallengeFilter
	if err := c.QueryParser(&f); err != nil {
		return apperr.NewValidation("invalid query parameters")
	}
	challenges, err := s.data.ListChallenges(c.UserContext(), f)
	if err != nil {
		return err
	}
	return c.JSON(challenges)
}

func (s *Server) GetChallenge(c *fiber.Ctx) error {
	ch, err := s.data.GetChallenge(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(ch)
}

func (s *Server) CreateChallenge(c *fiber.Ctx) error {
	var in models.CreateChallengeInput
	if err := c.BodyParser(&in); err != nil {
		return badBody()
	}
	ch, err := s.data.CreateChallenge(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(ch)
}

func (s *Server) SearchLuxicles(c *fiber.Ctx) error {
	var in models.LuxicleSearch
	if err := c.QueryParser(&in); err != nil {
		return apperr.NewValidation("invalid query parameters")
	}
	luxicles, err := s.data.SearchLuxicles(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.JSON(luxicles)
}

func (s *Server) GetLuxicle(c *fiber.Ctx) error {
	l, err := s.data.GetLuxicle(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(l)
}

// CreateLuxicle handles POST /api/luxicles; the owner is always the caller.
func (s *Server) CreateLuxicle(c *fiber.Ctx) error {
	var in models.CreateLuxicleInput
	if err := c.BodyParser(&in); err != nil {
		return badBody()
	}
	in.UserID = currentUserID(c)
	l, err := s.data.CreateLuxicle(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(l)
}

func (s *Server) UpdateLuxicle(c *fiber.Ctx) error {
	var in models.UpdateLuxicleInput
	if err := c.BodyParser(&in); err != nil {
		return badBody()
	}
	l, err := s.data.UpdateLuxicle(c.UserContext(), c.Params("id"), currentUserID(c), in)
	if err != nil {
		return err
	}
	return c.JSON(l)
}

func (s *Server) ListComments(c *fiber.Ctx) error {
	comments, err := s.data.ListComments(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(comments)
}

func (s *Server) CreateComment(c *fiber.Ctx) error {
	var body struct {
		Body string `json:"body"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badBody()
	}
	comment, err := s.data.CreateComment(c.UserContext(), c.Params("id"), currentUserID(c), body.Body)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

func (s *Server) ListReactions(c *fiber.Ctx) error {
	reactions, err := s.data.ListReactions(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(reactions)
}

func (s *Server) CreateReaction(c *fiber.Ctx) error {
	var body struct {
		Kind string `json:"kind"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badBody()
	}
	reaction, err := s.data.CreateReaction(c.UserContext(), c.Params("id"), currentUserID(c), body.Kind)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(reaction)
}

// CreateFlag reports a luxicle for moderation.
func (s *Server) CreateFlag(c *fiber.Ctx) error {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badBody()
	}
	flag, err := s.data.CreateFlag(c.UserContext(), c.Params("id"), currentUserID(c), body.Reason)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(flag)
}

// ListMessages returns the caller's sent and received messages.
func (s *Server) ListMessages(c *fiber.Ctx) error {
	messages, err := s.data.ListMessages(c.UserContext(), currentUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(messages)
}

func (s *Server) SendMessage(c *fiber.Ctx) error {
	var body struct {
		RecipientID string `json:"recipient_id"`
		Body        string `json:"body"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badBody()
	}
	msg, err := s.data.SendMessage(c.UserContext(), currentUserID(c), body.RecipientID, body.Body)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (s *Server) SearchUsers(c *fiber.Ctx) error {
	var in models.UserSearch
	if err := c.QueryParser(&in); err != nil {
		return apperr.NewValidation("invalid query parameters")
	}
	users, err := s.data.SearchUsers(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.JSON(users)
}

func (s *Server) GetUserByUsername(c *fiber.Ctx) error {
	u, err := s.data.GetUserProfileByUsername(c.UserContext(), c.Params("username"))
	if err != nil {
		return err
	}
	return c.JSON(u)
}

func (s *Server) Follow(c *fiber.Ctx) error {
	f, err := s.data.Follow(c.UserContext(), currentUserID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(f)
}

func (s *Server) Unfollow(c *fiber.Ctx) error {
	if err := s.data.Unfollow(c.UserContext(), currentUserID(c), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Unfollowed"})
}

func (s *Server) ListFollowers(c *fiber.Ctx) error {
	users, err := s.data.ListFollowers(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(users)
}

func (s *Server) ListFollowing(c *fiber.Ctx) error {
	users, err := s.data.ListFollowing(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(users)
}

// GetProfile handles GET /api/profile. Signed out, the gated read is disabled
// and answers 401.
func (s *Server) GetProfile(c *fiber.Ctx) error {
	u, err := s.data.GetUserProfile(c.UserContext(), currentUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(u)
}

func (s *Server) UpdateProfile(c *fiber.Ctx) error {
	var in models.UpdateProfileInput
	if err := c.BodyParser(&in); err != nil {
		return badBody()
	}
	userID := currentUserID(c)
	if err := s.checkImageURL(storage.KindAvatar, userID, "avatar_url", in.AvatarURL); err != nil {
		return err
	}
	if err := s.checkImageURL(storage.KindCover, userID, "cover_url", in.CoverURL); err != nil {
		return err
	}
	u, err := s.data.UpdateUserProfile(c.UserContext(), userID, in)
	if err != nil {
		return err
	}
	return c.JSON(u)
}

// checkImageURL allows clearing an image or pointing at one the caller uploaded.
func (s *Server) checkImageURL(kind storage.Kind, userID, field string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	if _, ok := s.uploads.OwnedPath(kind, userID, *v); !ok {
		return apperr.NewValidation(field + " must be an image uploaded through this account")
	}
	return nil
}

func (s *Server) UploadAvatar(c *fiber.Ctx) error {
	return s.uploadProfileImage(c, storage.KindAvatar)
}

func (s *Server) UploadCover(c *fiber.Ctx) error {
	return s.uploadProfileImage(c, storage.KindCover)
}

// uploadProfileImage stores the multipart "file" field, points the profile at
// it and then drops the image it replaced.
func (s *Server) uploadProfileImage(c *fiber.Ctx, kind storage.Kind) error {
	ctx := c.UserContext()
	userID := currentUserID(c)

	fh, err := c.FormFile("file")
	if err != nil {
		return apperr.NewValidation("file is required")
	}
	body, err := fh.Open()
	if err != nil {
		return apperr.NewInternal(err)
	}
	defer body.Close()

	prev, err := s.data.GetUserProfile(ctx, userID)
	if err != nil {
		return err
	}

	url, err := s.uploads.Upload(ctx, kind, userID, storage.File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Size:        fh.Size,
		Body:        body,
	})
	if err != nil {
		return err
	}

	patch := models.UpdateProfileInput{}
	old := prev.AvatarURL
	if kind == storage.KindCover {
		patch.CoverURL = &url
		old = prev.CoverURL
	} else {
		patch.AvatarURL = &url
	}
	u, err := s.data.UpdateUserProfile(ctx, userID, patch)
	if err != nil {
		return err
	}

	if _, owned := s.uploads.OwnedPath(kind, userID, old); owned {
		if err := s.uploads.DeleteOwned(ctx, kind, userID, old); err != nil {
			s.log.Warnw("old image not deleted", "url", old, "error", err)
		}
	}
	return c.JSON(fiber.Map{"url": url, "user": u})
}
