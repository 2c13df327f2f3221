package server

import (
	"net/http"

	"github.com/Sternrassler/bookshelf-web/pkg/catalog"
	"github.com/gin-gonic/gin"
)

// listBooks renders the home page.
func (s *Server) listBooks(c *gin.Context) {
	books, err := s.deps.Catalog.ListBooks(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Error occurred while fetching books")
		s.renderError(c, http.StatusInternalServerError, "Error occurred while fetching books")
		return
	}

	c.HTML(http.StatusOK, "list.html", gin.H{
		"Title": "All books",
		"Books": books,
	})
}

// showBook renders a book detail page.
func (s *Server) showBook(c *gin.Context) {
	bookID := c.Param("bookId")

	book, err := s.deps.Catalog.GetBook(c.Request.Context(), bookID)
	if err != nil {
		if catalog.IsNotFound(err) {
			s.renderError(c, http.StatusNotFound, "Book not found")
			return
		}
		s.logger.Error().Err(err).Str("book_id", bookID).Msg("Error fetching book")
		s.renderError(c, http.StatusInternalServerError, "Error fetching book")
		return
	}

	c.HTML(http.StatusOK, "book.html", gin.H{
		"Title": book.Title,
		"Book":  book,
	})
}

// downloadBook redirects to the book's file.
func (s *Server) downloadBook(c *gin.Context) {
	bookID := c.Param("bookId")

	link, err := s.deps.Catalog.DownloadURL(c.Request.Context(), bookID)
	if err != nil {
		if catalog.IsNotFound(err) {
			s.renderError(c, http.StatusNotFound, "Book not found")
			return
		}
		s.logger.Error().Err(err).Str("book_id", bookID).Msg("Error fetching book file")
		s.renderError(c, http.StatusInternalServerError, "Error fetching book")
		return
	}

	c.Redirect(http.StatusFound, link)
}

func (s *Server) renderError(c *gin.Context, status int, message string) {
	c.HTML(status, "error.html", gin.H{
		"Title":   "Error",
		"Message": message,
	})
}
